package tax

import (
	"errors"
	"reflect"
	"testing"

	"taxprep/internal/core"
)

func singleWageRecord(year int, wagesCents int64) *core.TaxRecord {
	return &core.TaxRecord{
		TaxYear:      year,
		State:        core.InProgress,
		FilingStatus: core.Single,
		Income: core.Income{Items: []core.IncomeItem{
			{Kind: core.Wages, Description: "W-2", Amount: core.Money{Cents: wagesCents}},
		}},
	}
}

func TestCalculateSingle2023Scenario(t *testing.T) {
	// 50,000 wages, no adjustments, standard deduction 13,850:
	// taxable 36,150 -> 1,100 + 12% of 25,150 = 4,118.00 federal tax.
	rec := singleWageRecord(2023, 5000000)

	got, err := Calculate(rec)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"total income", got.TotalIncome.Cents, 5000000},
		{"adjustments", got.Adjustments.Cents, 0},
		{"AGI", got.AdjustedGrossIncome.Cents, 5000000},
		{"deductions", got.Deductions.Cents, 1385000},
		{"taxable income", got.TaxableIncome.Cents, 3615000},
		{"federal tax", got.FederalTax.Cents, 411800},
		{"tax due", got.TaxDue.Cents, 411800},
		{"refund", got.RefundAmount.Cents, 0},
		{"owed", got.AmountOwed.Cents, 411800},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if !got.Settled() {
		t.Error("results violate refund/owed exclusion")
	}
}

func TestCalculateSettlement(t *testing.T) {
	cases := []struct {
		name       string
		payments   int64
		wantRefund int64
		wantOwed   int64
	}{
		// Federal tax on the fixture is 4,118.00.
		{"underpaid", 361800, 0, 50000},
		{"overpaid", 461800, 50000, 0},
		{"exact", 411800, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := singleWageRecord(2023, 5000000)
			rec.Payments.Withholding = core.Money{Cents: tc.payments}

			got, err := Calculate(rec)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if got.RefundAmount.Cents != tc.wantRefund {
				t.Errorf("refund = %d, want %d", got.RefundAmount.Cents, tc.wantRefund)
			}
			if got.AmountOwed.Cents != tc.wantOwed {
				t.Errorf("owed = %d, want %d", got.AmountOwed.Cents, tc.wantOwed)
			}
			if got.RefundAmount.Cents > 0 && got.AmountOwed.Cents > 0 {
				t.Error("refund and owed must never both be positive")
			}
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	rec := singleWageRecord(2023, 5000000)
	rec.Adjustments.RetirementContributions = core.Money{Cents: 600000}
	rec.Credits.Items = []core.CreditItem{
		{Description: "child tax credit", Amount: core.Money{Cents: 200000}},
	}

	first, err := Calculate(rec)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	second, err := Calculate(rec)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Calculate() not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestCalculateNegativeAGI(t *testing.T) {
	rec := &core.TaxRecord{
		TaxYear:      2023,
		State:        core.InProgress,
		FilingStatus: core.Single,
		Income: core.Income{Items: []core.IncomeItem{
			{Kind: core.Wages, Description: "W-2", Amount: core.Money{Cents: 100000}},
			{Kind: core.CapitalGain, Description: "stock loss", Amount: core.Money{Cents: -500000}},
		}},
		Adjustments: core.Adjustments{Other: core.Money{Cents: 50000}},
	}

	got, err := Calculate(rec)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if got.TotalIncome.Cents != -400000 {
		t.Errorf("total income = %d, want %d (raw sum, no floor)", got.TotalIncome.Cents, -400000)
	}
	if got.AdjustedGrossIncome.Cents != -450000 {
		t.Errorf("AGI = %d, want %d (may be negative)", got.AdjustedGrossIncome.Cents, -450000)
	}
	if got.TaxableIncome.Cents != 0 {
		t.Errorf("taxable income = %d, want 0 (floored)", got.TaxableIncome.Cents)
	}
	if got.FederalTax.Cents != 0 {
		t.Errorf("federal tax = %d, want 0", got.FederalTax.Cents)
	}
}

func TestCalculateDeductionSelection(t *testing.T) {
	base := func() *core.TaxRecord {
		rec := singleWageRecord(2023, 10000000)
		rec.Deductions.Itemizing = true
		return rec
	}

	t.Run("itemized beats standard", func(t *testing.T) {
		rec := base()
		rec.Deductions.Items = []core.DeductionItem{
			{Kind: core.MortgageInterest, Amount: core.Money{Cents: 2000000}},
		}
		got, err := Calculate(rec)
		if err != nil {
			t.Fatalf("Calculate() error = %v", err)
		}
		if got.Deductions.Cents != 2000000 {
			t.Errorf("deductions = %d, want itemized %d", got.Deductions.Cents, 2000000)
		}
	})

	t.Run("standard beats sparse itemized", func(t *testing.T) {
		rec := base()
		rec.Deductions.Items = []core.DeductionItem{
			{Kind: core.Charitable, Amount: core.Money{Cents: 100000}},
		}
		got, err := Calculate(rec)
		if err != nil {
			t.Fatalf("Calculate() error = %v", err)
		}
		if got.Deductions.Cents != 1385000 {
			t.Errorf("deductions = %d, want standard %d", got.Deductions.Cents, 1385000)
		}
	})

	t.Run("itemizing with no items is an error", func(t *testing.T) {
		rec := base()
		_, err := Calculate(rec)
		var ce *CalculationError
		if !errors.As(err, &ce) {
			t.Fatalf("error type = %T, want *CalculationError", err)
		}
		if ce.Stage != StageDeductions {
			t.Errorf("stage = %s, want %s", ce.Stage, StageDeductions)
		}
	})
}

func TestCalculateCredits(t *testing.T) {
	t.Run("nonrefundable floors at zero", func(t *testing.T) {
		rec := singleWageRecord(2023, 1500000) // taxable 1,150 -> 115.00 tax
		rec.Credits.Items = []core.CreditItem{
			{Description: "education", Amount: core.Money{Cents: 500000}},
		}
		got, err := Calculate(rec)
		if err != nil {
			t.Fatalf("Calculate() error = %v", err)
		}
		if got.TaxDue.Cents != 0 {
			t.Errorf("tax due = %d, want 0 (nonrefundable floored)", got.TaxDue.Cents)
		}
		if got.RefundAmount.Cents != 0 {
			t.Errorf("refund = %d, want 0", got.RefundAmount.Cents)
		}
	})

	t.Run("refundable pushes below zero into refund", func(t *testing.T) {
		rec := singleWageRecord(2023, 500000) // below the standard deduction
		rec.Credits.Items = []core.CreditItem{
			{Description: "EITC", Amount: core.Money{Cents: 100000}, Refundable: true},
		}
		got, err := Calculate(rec)
		if err != nil {
			t.Fatalf("Calculate() error = %v", err)
		}
		if got.TaxDue.Cents != -100000 {
			t.Errorf("tax due = %d, want %d", got.TaxDue.Cents, -100000)
		}
		if got.RefundAmount.Cents != 100000 {
			t.Errorf("refund = %d, want %d", got.RefundAmount.Cents, 100000)
		}
		if got.AmountOwed.Cents != 0 {
			t.Errorf("owed = %d, want 0", got.AmountOwed.Cents)
		}
	})
}

func TestCalculateSelfEmploymentAddback(t *testing.T) {
	rec := &core.TaxRecord{
		TaxYear:      2023,
		State:        core.InProgress,
		FilingStatus: core.Single,
		Income: core.Income{Items: []core.IncomeItem{
			{Kind: core.SelfEmployment, Description: "consulting", Amount: core.Money{Cents: 10000000}},
		}},
	}
	got, err := Calculate(rec)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if got.AdditionalTaxes.Cents != 1412955 {
		t.Errorf("additional taxes = %d, want %d", got.AdditionalTaxes.Cents, 1412955)
	}
	if got.TaxDue.Cents != got.FederalTax.Cents+1412955 {
		t.Errorf("tax due = %d, want federal %d plus SE tax", got.TaxDue.Cents, got.FederalTax.Cents)
	}
}

func TestCalculateErrors(t *testing.T) {
	t.Run("unsupported year", func(t *testing.T) {
		rec := singleWageRecord(1995, 5000000)
		_, err := Calculate(rec)
		if !errors.Is(err, ErrUnsupportedYear) {
			t.Fatalf("expected ErrUnsupportedYear, got %v", err)
		}
		var ce *CalculationError
		if !errors.As(err, &ce) || ce.Stage != StageTables {
			t.Errorf("expected tables-stage CalculationError, got %v", err)
		}
	})

	t.Run("missing filing status", func(t *testing.T) {
		rec := singleWageRecord(2023, 5000000)
		rec.FilingStatus = ""
		_, err := Calculate(rec)
		var ce *CalculationError
		if !errors.As(err, &ce) || ce.Stage != StageValidation {
			t.Fatalf("expected validation-stage CalculationError, got %v", err)
		}
	})

	t.Run("nil record", func(t *testing.T) {
		if _, err := Calculate(nil); err == nil {
			t.Fatal("expected error")
		}
	})
}
