package filing

import (
	"errors"
	"testing"

	"taxprep/internal/core"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		answers StatusAnswers
		want    core.FilingStatus
		wantErr bool
	}{
		{
			name:    "unmarried with no dependents is single",
			answers: StatusAnswers{},
			want:    core.Single,
		},
		{
			name:    "married electing joint",
			answers: StatusAnswers{Married: true, Preference: PreferJoint},
			want:    core.MarriedJoint,
		},
		{
			name:    "married electing separate",
			answers: StatusAnswers{Married: true, Preference: PreferSeparate},
			want:    core.MarriedSeparate,
		},
		{
			name:    "unmarried electing joint is contradictory",
			answers: StatusAnswers{Married: false, Preference: PreferJoint},
			wantErr: true,
		},
		{
			name:    "married without an election is contradictory",
			answers: StatusAnswers{Married: true},
			wantErr: true,
		},
		{
			name:    "married and separated is contradictory",
			answers: StatusAnswers{Married: true, SeparatedOrDivorced: true, Preference: PreferJoint},
			wantErr: true,
		},
		{
			name:    "unknown election",
			answers: StatusAnswers{Married: true, Preference: "both"},
			wantErr: true,
		},
		{
			name:    "dependents and majority household costs is head of household",
			answers: StatusAnswers{HasDependents: true, PaysHalfHouseholdCosts: true},
			want:    core.HeadOfHousehold,
		},
		{
			name:    "dependents without majority household costs is single",
			answers: StatusAnswers{HasDependents: true},
			want:    core.Single,
		},
		{
			name:    "majority household costs without dependents is single",
			answers: StatusAnswers{PaysHalfHouseholdCosts: true},
			want:    core.Single,
		},
		{
			name:    "recent widow with qualifying child",
			answers: StatusAnswers{SpouseDiedWithinTwoYears: true, HasQualifyingChild: true},
			want:    core.QualifyingWidow,
		},
		{
			name: "widow rule wins over head of household",
			answers: StatusAnswers{
				SpouseDiedWithinTwoYears: true,
				HasQualifyingChild:       true,
				HasDependents:            true,
				PaysHalfHouseholdCosts:   true,
			},
			want: core.QualifyingWidow,
		},
		{
			name:    "recent widow without qualifying child falls through",
			answers: StatusAnswers{SpouseDiedWithinTwoYears: true},
			want:    core.Single,
		},
		{
			name:    "remarried filer cannot claim a deceased spouse",
			answers: StatusAnswers{Married: true, SpouseDiedWithinTwoYears: true, Preference: PreferJoint},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.answers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("Resolve() error type = %T, want *ValidationError", err)
				}
				if ve.Field == "" || ve.Reason == "" {
					t.Errorf("ValidationError missing field or reason: %+v", ve)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	answers := StatusAnswers{Married: true, Preference: PreferSeparate}
	first, err := Resolve(answers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := Resolve(answers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first != second {
		t.Errorf("Resolve() not idempotent: %s then %s", first, second)
	}
}

func TestCanonicalAnswersFixedPoint(t *testing.T) {
	for _, status := range core.AllFilingStatuses() {
		t.Run(string(status), func(t *testing.T) {
			answers, err := CanonicalAnswers(status)
			if err != nil {
				t.Fatalf("CanonicalAnswers(%s) error = %v", status, err)
			}
			resolved, err := Resolve(answers)
			if err != nil {
				t.Fatalf("Resolve(canonical %s) error = %v", status, err)
			}
			if resolved != status {
				t.Errorf("Resolve(canonical %s) = %s, want fixed point", status, resolved)
			}
		})
	}

	if _, err := CanonicalAnswers("common_law"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestAnswersFromPersonal(t *testing.T) {
	p := core.PersonalInformation{
		Married:            false,
		Dependents:         2,
		HouseholdCostShare: 60,
	}
	got, err := Resolve(AnswersFromPersonal(p, ""))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != core.HeadOfHousehold {
		t.Errorf("Resolve() = %s, want %s", got, core.HeadOfHousehold)
	}

	// Exactly 50% qualifies; 49% does not.
	p.HouseholdCostShare = 50
	if a := AnswersFromPersonal(p, ""); !a.PaysHalfHouseholdCosts {
		t.Error("50%% share should count as paying half the household costs")
	}
	p.HouseholdCostShare = 49
	if a := AnswersFromPersonal(p, ""); a.PaysHalfHouseholdCosts {
		t.Error("49%% share should not count as paying half the household costs")
	}
}
