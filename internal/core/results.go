package core

import "time"

// CalculatedResults is the derived, immutable snapshot the calculation engine
// produces for a record. All amounts are in cents.
//
// Invariants: AdjustedGrossIncome = TotalIncome - Adjustments;
// TaxableIncome = max(0, AdjustedGrossIncome - Deductions);
// RefundAmount = max(0, Payments - TaxDue); AmountOwed = max(0, TaxDue - Payments);
// RefundAmount and AmountOwed are never both positive.
type CalculatedResults struct {
	TaxYear      int          `json:"tax_year"`
	FilingStatus FilingStatus `json:"filing_status"`

	TotalIncome         Money `json:"total_income"`
	Adjustments         Money `json:"adjustments"`
	AdjustedGrossIncome Money `json:"adjusted_gross_income"`
	Deductions          Money `json:"deductions"`
	TaxableIncome       Money `json:"taxable_income"`
	FederalTax          Money `json:"federal_tax"`
	Credits             Money `json:"credits"`
	AdditionalTaxes     Money `json:"additional_taxes"`
	TaxDue              Money `json:"tax_due"`
	Payments            Money `json:"payments"`
	RefundAmount        Money `json:"refund_amount"`
	AmountOwed          Money `json:"amount_owed"`

	// CalculatedAt is set by the persistence layer when a snapshot is saved,
	// never by the engine itself; the engine stays clock-free.
	CalculatedAt time.Time `json:"calculated_at,omitempty"`
}

// Settled reports whether the refund/owed pair satisfies the mutual
// exclusion invariant.
func (cr CalculatedResults) Settled() bool {
	if cr.RefundAmount.Cents < 0 || cr.AmountOwed.Cents < 0 {
		return false
	}
	return cr.RefundAmount.Cents == 0 || cr.AmountOwed.Cents == 0
}
