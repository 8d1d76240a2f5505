package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Single          FilingStatus = "single"
	MarriedJoint    FilingStatus = "married_joint"
	MarriedSeparate FilingStatus = "married_separate"
	HeadOfHousehold FilingStatus = "head_of_household"
	QualifyingWidow FilingStatus = "qualifying_widow"
)

const (
	InProgress ReturnState = "in_progress"
	Completed  ReturnState = "completed"
)

const (
	Wages          IncomeKind = "wages"
	Interest       IncomeKind = "interest"
	Dividends      IncomeKind = "dividends"
	CapitalGain    IncomeKind = "capital_gain"
	SelfEmployment IncomeKind = "self_employment"
	OtherIncome    IncomeKind = "other"
)

const (
	MortgageInterest DeductionKind = "mortgage_interest"
	StateIncomeTax   DeductionKind = "salt_state_income"
	PropertyTax      DeductionKind = "salt_property"
	Charitable       DeductionKind = "charitable"
	Medical          DeductionKind = "medical"
	OtherDeduction   DeductionKind = "other"
)

// SALTCapCents is the federal cap on combined state and local tax deductions.
const SALTCapCents int64 = 10_000_00

type (
	// FilingStatus is one of the five mutually exclusive federal filing statuses.
	FilingStatus string

	// ReturnState is the workflow state of a return, not its tax meaning.
	ReturnState string

	IncomeKind    string
	DeductionKind string

	Money struct {
		Cents int64
	}

	// PersonalInformation holds the filer identity and the household facts
	// the filing-status resolver needs.
	PersonalInformation struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`

		Married             bool `json:"married"`
		SeparatedOrDivorced bool `json:"separated_or_divorced"`
		Dependents          int  `json:"dependents"`
		// HouseholdCostShare is the percentage (0-100) of household
		// maintenance costs paid by the filer.
		HouseholdCostShare int `json:"household_cost_share"`

		SpouseDiedWithinTwoYears bool `json:"spouse_died_within_two_years"`
		QualifyingChild          bool `json:"qualifying_child"`
	}

	// IncomeItem is one income line. Negative amounts are losses and are
	// permitted; the raw sum is never floored.
	IncomeItem struct {
		Kind        IncomeKind `json:"kind"`
		Description string     `json:"description"`
		Amount      Money      `json:"amount"`
	}

	Income struct {
		Items []IncomeItem `json:"items"`
	}

	// Adjustments are the above-the-line subtractions from total income.
	Adjustments struct {
		RetirementContributions Money `json:"retirement_contributions"`
		StudentLoanInterest     Money `json:"student_loan_interest"`
		HSAContributions        Money `json:"hsa_contributions"`
		EducatorExpenses        Money `json:"educator_expenses"`
		Other                   Money `json:"other"`
	}

	DeductionItem struct {
		Kind        DeductionKind `json:"kind"`
		Description string        `json:"description"`
		Amount      Money         `json:"amount"`
	}

	// Deductions is either the standard deduction for the filing status and
	// year, or itemized line items; the engine takes the greater when
	// Itemizing is set.
	Deductions struct {
		Itemizing bool            `json:"itemizing"`
		Items     []DeductionItem `json:"items"`
	}

	// CreditItem is a tax credit. Refundable credits may push tax due below
	// zero; nonrefundable credits floor at zero.
	CreditItem struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Refundable  bool   `json:"refundable"`
	}

	TaxCredits struct {
		Items []CreditItem `json:"items"`
	}

	Payments struct {
		Withholding       Money `json:"withholding"`
		EstimatedPayments Money `json:"estimated_payments"`
	}

	// TaxRecord is the full in-memory representation of one filer's return
	// for one tax year. The calculation engine treats it as read-only.
	TaxRecord struct {
		ID           int64        `json:"id"`
		TaxYear      int          `json:"tax_year"`
		State        ReturnState  `json:"state"`
		FilingStatus FilingStatus `json:"filing_status"`

		Personal    PersonalInformation `json:"personal"`
		Income      Income              `json:"income"`
		Adjustments Adjustments         `json:"adjustments"`
		Deductions  Deductions          `json:"deductions"`
		Credits     TaxCredits          `json:"credits"`
		OtherTaxes  Money               `json:"other_taxes"`
		Payments    Payments            `json:"payments"`

		Version   int64     `json:"version"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

var (
	ErrInvalidFilingStatus = errors.New("invalid filing status")
	ErrInvalidTaxYear      = errors.New("invalid tax year")
	ErrInvalidIncomeKind   = errors.New("invalid income kind")
	ErrEmptyDescription    = errors.New("empty description")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDependents   = errors.New("dependents count cannot be negative")
	ErrInvalidCostShare    = errors.New("household cost share must be between 0 and 100")
	ErrNegativePayment     = errors.New("payments cannot be negative")
)

func (fs FilingStatus) Valid() bool {
	switch fs {
	case Single, MarriedJoint, MarriedSeparate, HeadOfHousehold, QualifyingWidow:
		return true
	}
	return false
}

// AllFilingStatuses returns the five filing statuses in a stable order.
func AllFilingStatuses() []FilingStatus {
	return []FilingStatus{Single, MarriedJoint, MarriedSeparate, HeadOfHousehold, QualifyingWidow}
}

func (s ReturnState) Valid() bool {
	return s == InProgress || s == Completed
}

func (k IncomeKind) Valid() bool {
	switch k {
	case Wages, Interest, Dividends, CapitalGain, SelfEmployment, OtherIncome:
		return true
	}
	return false
}

func (k DeductionKind) Valid() bool {
	switch k {
	case MortgageInterest, StateIncomeTax, PropertyTax, Charitable, Medical, OtherDeduction:
		return true
	}
	return false
}

// IsSALT reports whether the deduction falls under the state-and-local-tax cap.
func (k DeductionKind) IsSALT() bool {
	return k == StateIncomeTax || k == PropertyTax
}

func (p PersonalInformation) Validate() error {
	if p.Dependents < 0 {
		return ErrInvalidDependents
	}
	if p.HouseholdCostShare < 0 || p.HouseholdCostShare > 100 {
		return ErrInvalidCostShare
	}
	return nil
}

func (i IncomeItem) Validate() error {
	if !i.Kind.Valid() {
		return ErrInvalidIncomeKind
	}
	if len(strings.TrimSpace(i.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(i.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (in Income) Validate() error {
	for _, item := range in.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Total is the raw sum of all income line items; losses reduce it and the
// sum is not floored at zero.
func (in Income) Total() Money {
	var cents int64
	for _, item := range in.Items {
		cents += item.Amount.Cents
	}
	return Money{Cents: cents}
}

// SelfEmploymentNet sums only self-employment line items.
func (in Income) SelfEmploymentNet() Money {
	var cents int64
	for _, item := range in.Items {
		if item.Kind == SelfEmployment {
			cents += item.Amount.Cents
		}
	}
	return Money{Cents: cents}
}

func (a Adjustments) Validate() error {
	for _, m := range []Money{a.RetirementContributions, a.StudentLoanInterest, a.HSAContributions, a.EducatorExpenses, a.Other} {
		if m.Cents < 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}

// Total sums the above-the-line adjustment fields.
func (a Adjustments) Total() Money {
	return Money{Cents: a.RetirementContributions.Cents +
		a.StudentLoanInterest.Cents +
		a.HSAContributions.Cents +
		a.EducatorExpenses.Cents +
		a.Other.Cents}
}

func (d DeductionItem) Validate() error {
	if !d.Kind.Valid() {
		return errors.New("invalid deduction kind")
	}
	if d.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (d Deductions) Validate() error {
	for _, item := range d.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ItemizedTotal sums itemized deduction lines, applying the SALT cap to the
// combined state-and-local group.
func (d Deductions) ItemizedTotal() Money {
	var salt, other int64
	for _, item := range d.Items {
		if item.Kind.IsSALT() {
			salt += item.Amount.Cents
		} else {
			other += item.Amount.Cents
		}
	}
	if salt > SALTCapCents {
		salt = SALTCapCents
	}
	return Money{Cents: salt + other}
}

func (c CreditItem) Validate() error {
	if c.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (tc TaxCredits) Validate() error {
	for _, item := range tc.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Nonrefundable sums credits that cannot push tax below zero.
func (tc TaxCredits) Nonrefundable() Money {
	var cents int64
	for _, item := range tc.Items {
		if !item.Refundable {
			cents += item.Amount.Cents
		}
	}
	return Money{Cents: cents}
}

// Refundable sums credits that may generate a refund on their own.
func (tc TaxCredits) Refundable() Money {
	var cents int64
	for _, item := range tc.Items {
		if item.Refundable {
			cents += item.Amount.Cents
		}
	}
	return Money{Cents: cents}
}

func (p Payments) Validate() error {
	if p.Withholding.Cents < 0 || p.EstimatedPayments.Cents < 0 {
		return ErrNegativePayment
	}
	return nil
}

// Total is withholding plus estimated payments.
func (p Payments) Total() Money {
	return Money{Cents: p.Withholding.Cents + p.EstimatedPayments.Cents}
}

// Validate checks the record's own consistency. Completeness for a given
// calculation path is the engine's concern, not the record's.
func (r *TaxRecord) Validate() error {
	if r.TaxYear < 1913 {
		return ErrInvalidTaxYear
	}
	if !r.State.Valid() {
		return errors.New("invalid return state")
	}
	if r.FilingStatus != "" && !r.FilingStatus.Valid() {
		return ErrInvalidFilingStatus
	}
	if err := r.Personal.Validate(); err != nil {
		return err
	}
	if err := r.Income.Validate(); err != nil {
		return err
	}
	if err := r.Adjustments.Validate(); err != nil {
		return err
	}
	if err := r.Deductions.Validate(); err != nil {
		return err
	}
	if err := r.Credits.Validate(); err != nil {
		return err
	}
	return r.Payments.Validate()
}
