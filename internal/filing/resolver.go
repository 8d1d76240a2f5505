// Package filing derives a filer's federal filing status from wizard answers.
//
// Resolution is a pure function over the answers: no side effects, no clock,
// re-invoking with identical answers yields the identical status.
package filing

import (
	"fmt"

	"taxprep/internal/core"
)

const (
	// PreferJoint and PreferSeparate are the election a married filer makes.
	// An empty preference is only valid for unmarried filers.
	PreferJoint    Preference = "joint"
	PreferSeparate Preference = "separate"
)

type (
	// Preference is a married filer's joint-vs-separate election.
	Preference string

	// StatusAnswers is the snapshot of wizard answers the resolver consumes.
	StatusAnswers struct {
		Married                  bool
		SeparatedOrDivorced      bool
		HasDependents            bool
		PaysHalfHouseholdCosts   bool
		SpouseDiedWithinTwoYears bool
		HasQualifyingChild       bool
		Preference               Preference
	}
)

// ValidationError reports a contradictory or malformed answer combination.
// It is surfaced to the caller as a field-level message; the resolver never
// guesses a status from inconsistent input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer for %s: %s", e.Field, e.Reason)
}

// Resolve determines the single filing status the answers qualify for.
//
// Statuses are mutually exclusive but their conditions overlap, so the rules
// are evaluated in precedence order and the first match wins:
//
//  1. qualifying_widow: spouse died within two years and a qualifying child
//     is present
//  2. married_joint: currently married, elects joint
//  3. married_separate: currently married, elects separate
//  4. head_of_household: unmarried, has dependents, pays at least half the
//     household costs
//  5. single: unmarried fallback
func Resolve(a StatusAnswers) (core.FilingStatus, error) {
	if err := validate(a); err != nil {
		return "", err
	}

	if a.SpouseDiedWithinTwoYears && a.HasQualifyingChild {
		return core.QualifyingWidow, nil
	}
	if a.Married {
		switch a.Preference {
		case PreferJoint:
			return core.MarriedJoint, nil
		case PreferSeparate:
			return core.MarriedSeparate, nil
		}
		// validate already rejected a missing or unknown election
	}
	if a.HasDependents && a.PaysHalfHouseholdCosts {
		return core.HeadOfHousehold, nil
	}
	return core.Single, nil
}

func validate(a StatusAnswers) error {
	if a.Preference != "" && a.Preference != PreferJoint && a.Preference != PreferSeparate {
		return &ValidationError{Field: "preference", Reason: fmt.Sprintf("unknown election %q", a.Preference)}
	}
	if !a.Married && a.Preference != "" {
		return &ValidationError{Field: "preference", Reason: "joint or separate filing requires being married"}
	}
	if a.Married && a.SeparatedOrDivorced {
		return &ValidationError{Field: "separated_or_divorced", Reason: "cannot be both currently married and separated or divorced"}
	}
	if a.Married && a.SpouseDiedWithinTwoYears {
		return &ValidationError{Field: "spouse_died_within_two_years", Reason: "a remarried filer cannot claim a deceased spouse"}
	}
	// The widow rule matches before the married election is consulted, so the
	// election is only required when the widow rule cannot apply.
	widow := a.SpouseDiedWithinTwoYears && a.HasQualifyingChild
	if a.Married && !widow && a.Preference == "" {
		return &ValidationError{Field: "preference", Reason: "married filers must elect joint or separate filing"}
	}
	return nil
}

// CanonicalAnswers returns the minimal answer set that resolves to the given
// status. Resolving the canonical answers of a derived status yields the same
// status back (fixed point).
func CanonicalAnswers(status core.FilingStatus) (StatusAnswers, error) {
	switch status {
	case core.Single:
		return StatusAnswers{}, nil
	case core.MarriedJoint:
		return StatusAnswers{Married: true, Preference: PreferJoint}, nil
	case core.MarriedSeparate:
		return StatusAnswers{Married: true, Preference: PreferSeparate}, nil
	case core.HeadOfHousehold:
		return StatusAnswers{HasDependents: true, PaysHalfHouseholdCosts: true}, nil
	case core.QualifyingWidow:
		return StatusAnswers{SpouseDiedWithinTwoYears: true, HasQualifyingChild: true}, nil
	}
	return StatusAnswers{}, fmt.Errorf("unknown filing status: %s", status)
}

// AnswersFromPersonal builds StatusAnswers from the personal information
// section of a record plus the filer's election. The wizard calls Resolve
// directly; the calculation path uses this to cross-check a stored status.
func AnswersFromPersonal(p core.PersonalInformation, pref Preference) StatusAnswers {
	return StatusAnswers{
		Married:                  p.Married,
		SeparatedOrDivorced:      p.SeparatedOrDivorced,
		HasDependents:            p.Dependents > 0,
		PaysHalfHouseholdCosts:   p.HouseholdCostShare >= 50,
		SpouseDiedWithinTwoYears: p.SpouseDiedWithinTwoYears,
		HasQualifyingChild:       p.QualifyingChild,
		Preference:               pref,
	}
}
