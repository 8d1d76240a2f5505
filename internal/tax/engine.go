// Package tax computes federal tax results for a completed tax record.
//
// Calculate is a pure function: no I/O, no clock, no shared state. The same
// record always produces the same results, so callers are free to recompute
// on every wizard step change instead of caching.
package tax

import (
	"errors"
	"fmt"

	"taxprep/internal/core"
)

// Calculation stages, used to point an error at the step that produced it.
const (
	StageValidation    Stage = "validation"
	StageTables        Stage = "tables"
	StageIncome        Stage = "income"
	StageDeductions    Stage = "deductions"
	StageCredits       Stage = "credits"
	StageAdditionalTax Stage = "additional_tax"
)

type Stage string

// ErrUnsupportedYear marks a tax year with no bracket table. Callers must
// not retry calculation for that year; every other calculation error is
// recoverable by completing the missing fields.
var ErrUnsupportedYear = errors.New("unsupported tax year")

// CalculationError reports which stage of the calculation rejected the
// record and why.
type CalculationError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *CalculationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calculation failed at %s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("calculation failed at %s: %s", e.Stage, e.Reason)
}

func (e *CalculationError) Unwrap() error { return e.Err }

func calcErr(stage Stage, reason string) *CalculationError {
	return &CalculationError{Stage: stage, Reason: reason}
}

// Calculate produces the CalculatedResults snapshot for a record.
//
// The stages, in order: total income, adjustments, AGI, deduction selection,
// taxable income, marginal bracket tax, nonrefundable credits, additional
// taxes, refundable credits, settlement against payments.
func Calculate(record *core.TaxRecord) (core.CalculatedResults, error) {
	var zero core.CalculatedResults

	if record == nil {
		return zero, calcErr(StageValidation, "nil record")
	}
	if err := record.Validate(); err != nil {
		return zero, &CalculationError{Stage: StageValidation, Reason: "invalid record", Err: err}
	}
	if !record.FilingStatus.Valid() {
		return zero, calcErr(StageValidation, "filing status not selected")
	}

	table, ok := ForYear(record.TaxYear)
	if !ok {
		return zero, &CalculationError{
			Stage:  StageTables,
			Reason: fmt.Sprintf("no bracket table for tax year %d", record.TaxYear),
			Err:    ErrUnsupportedYear,
		}
	}

	// Step 1: total income is the raw sum; losses may drive it negative.
	totalIncome := record.Income.Total().Cents

	// Step 2: above-the-line adjustments. AGI may be negative.
	adjustments := record.Adjustments.Total().Cents
	agi := totalIncome - adjustments

	// Step 3: standard deduction vs itemized, whichever is greater.
	standard := table.StandardDeductionFor(record.FilingStatus)
	deduction := standard
	if record.Deductions.Itemizing {
		if len(record.Deductions.Items) == 0 {
			return zero, calcErr(StageDeductions, "itemizing claimed with no line items")
		}
		if itemized := record.Deductions.ItemizedTotal().Cents; itemized > deduction {
			deduction = itemized
		}
	}

	// Step 4: taxable income floors at zero.
	taxable := agi - deduction
	if taxable < 0 {
		taxable = 0
	}

	// Step 5: marginal bracket accumulation.
	federal := table.TaxOn(record.FilingStatus, taxable)

	// Step 6: nonrefundable credits floor at zero against regular tax.
	nonrefundable := record.Credits.Nonrefundable().Cents
	appliedNonrefundable := nonrefundable
	if appliedNonrefundable > federal {
		appliedNonrefundable = federal
	}
	afterCredits := federal - appliedNonrefundable

	// Step 7: additional taxes are added back before the final tax due.
	if record.OtherTaxes.Cents < 0 {
		return zero, calcErr(StageAdditionalTax, "other taxes cannot be negative")
	}
	selfEmploymentTax := table.SelfEmploymentTax(record.Income.SelfEmploymentNet().Cents)
	additional := selfEmploymentTax + record.OtherTaxes.Cents

	// Refundable credits come off last and may push tax due below zero;
	// settlement folds a negative tax due into the refund.
	refundable := record.Credits.Refundable().Cents
	taxDue := afterCredits + additional - refundable

	// Step 8: settlement against withholding and estimated payments.
	payments := record.Payments.Total().Cents
	refund := payments - taxDue
	if refund < 0 {
		refund = 0
	}
	owed := taxDue - payments
	if owed < 0 {
		owed = 0
	}

	return core.CalculatedResults{
		TaxYear:             record.TaxYear,
		FilingStatus:        record.FilingStatus,
		TotalIncome:         core.Money{Cents: totalIncome},
		Adjustments:         core.Money{Cents: adjustments},
		AdjustedGrossIncome: core.Money{Cents: agi},
		Deductions:          core.Money{Cents: deduction},
		TaxableIncome:       core.Money{Cents: taxable},
		FederalTax:          core.Money{Cents: federal},
		Credits:             core.Money{Cents: appliedNonrefundable + refundable},
		AdditionalTaxes:     core.Money{Cents: additional},
		TaxDue:              core.Money{Cents: taxDue},
		Payments:            core.Money{Cents: payments},
		RefundAmount:        core.Money{Cents: refund},
		AmountOwed:          core.Money{Cents: owed},
	}, nil
}
