package tax

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"sort"

	"taxprep/internal/core"
)

//go:embed tables/*.json
var tablesFS embed.FS

type (
	// Bracket is one marginal-rate tier. UpToCents is the upper bound of the
	// tier in cents; zero marks the unbounded final tier.
	Bracket struct {
		Rate      float64 `json:"rate"`
		UpToCents int64   `json:"up_to"`
	}

	// SelfEmploymentParams are the year's self-employment tax parameters.
	SelfEmploymentParams struct {
		NetEarningsFactor      float64 `json:"net_earnings_factor"`
		SocialSecurityRate     float64 `json:"social_security_rate"`
		MedicareRate           float64 `json:"medicare_rate"`
		SocialSecurityWageBase int64   `json:"social_security_wage_base"`
	}

	// YearTable is the versioned rate configuration for one tax year. New
	// years are added by dropping a JSON file into tables/, not by code
	// change. The engine treats a loaded table as read-only.
	YearTable struct {
		TaxYear           int                               `json:"tax_year"`
		StandardDeduction map[core.FilingStatus]int64       `json:"standard_deduction"`
		Brackets          map[core.FilingStatus][]Bracket   `json:"brackets"`
		SelfEmployment    SelfEmploymentParams              `json:"self_employment"`
	}
)

var registry = mustLoadTables()

func mustLoadTables() map[int]*YearTable {
	tables, err := LoadTables(tablesFS, "tables")
	if err != nil {
		panic(fmt.Sprintf("embedded tax tables are invalid: %v", err))
	}
	return tables
}

// LoadTables reads and validates every year table under dir in fsys.
func LoadTables(fsys fs.FS, dir string) (map[int]*YearTable, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read tables dir: %w", err)
	}

	tables := make(map[int]*YearTable, len(entries))
	for _, entry := range entries {
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", entry.Name(), err)
		}
		var table YearTable
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse table %s: %w", entry.Name(), err)
		}
		if err := table.validate(); err != nil {
			return nil, fmt.Errorf("table %s: %w", entry.Name(), err)
		}
		if _, dup := tables[table.TaxYear]; dup {
			return nil, fmt.Errorf("table %s: duplicate tax year %d", entry.Name(), table.TaxYear)
		}
		tables[table.TaxYear] = &table
	}
	return tables, nil
}

// validate checks the structural invariants the engine relies on: every
// filing status covered, thresholds strictly increasing, and exactly one
// unbounded final bracket per status.
func (t *YearTable) validate() error {
	if t.TaxYear < 1913 {
		return fmt.Errorf("invalid tax year %d", t.TaxYear)
	}
	for _, status := range core.AllFilingStatuses() {
		sd, ok := t.StandardDeduction[status]
		if !ok {
			return fmt.Errorf("missing standard deduction for %s", status)
		}
		if sd <= 0 {
			return fmt.Errorf("standard deduction for %s must be positive", status)
		}

		brackets, ok := t.Brackets[status]
		if !ok || len(brackets) == 0 {
			return fmt.Errorf("missing brackets for %s", status)
		}
		var prev int64
		for i, b := range brackets {
			if b.Rate <= 0 || b.Rate >= 1 {
				return fmt.Errorf("%s bracket %d: rate %v out of range", status, i, b.Rate)
			}
			last := i == len(brackets)-1
			if last {
				if b.UpToCents != 0 {
					return fmt.Errorf("%s: final bracket must be unbounded", status)
				}
				continue
			}
			if b.UpToCents <= prev {
				return fmt.Errorf("%s bracket %d: thresholds must be strictly increasing", status, i)
			}
			prev = b.UpToCents
		}
	}
	se := t.SelfEmployment
	if se.NetEarningsFactor <= 0 || se.NetEarningsFactor > 1 ||
		se.SocialSecurityRate <= 0 || se.MedicareRate <= 0 ||
		se.SocialSecurityWageBase <= 0 {
		return fmt.Errorf("invalid self-employment parameters")
	}
	return nil
}

// ForYear returns the table for a tax year, or false if the year is not
// supported.
func ForYear(year int) (*YearTable, bool) {
	t, ok := registry[year]
	return t, ok
}

// SupportedYears lists the tax years with a loaded table, ascending.
func SupportedYears() []int {
	years := make([]int, 0, len(registry))
	for y := range registry {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// StandardDeductionFor returns the flat statutory deduction for a status.
func (t *YearTable) StandardDeductionFor(status core.FilingStatus) int64 {
	return t.StandardDeduction[status]
}

// TaxOn applies the progressive bracket table to taxable income using
// marginal-rate accumulation: each tier's rate applies only to the income
// inside that tier. The result is rounded half-up to the cent.
func (t *YearTable) TaxOn(status core.FilingStatus, taxableCents int64) int64 {
	if taxableCents <= 0 {
		return 0
	}
	var tax float64
	var lower int64
	for _, b := range t.Brackets[status] {
		upper := b.UpToCents
		if upper == 0 || upper > taxableCents {
			upper = taxableCents
		}
		if upper > lower {
			tax += float64(upper-lower) * b.Rate
		}
		if b.UpToCents == 0 || taxableCents <= b.UpToCents {
			break
		}
		lower = b.UpToCents
	}
	return int64(math.Round(tax))
}

// SelfEmploymentTax computes the year's self-employment tax on net
// self-employment earnings: the social security portion is capped at the
// wage base, the medicare portion is not.
func (t *YearTable) SelfEmploymentTax(netEarningsCents int64) int64 {
	if netEarningsCents <= 0 {
		return 0
	}
	p := t.SelfEmployment
	base := float64(netEarningsCents) * p.NetEarningsFactor
	ssBase := base
	if wageBase := float64(p.SocialSecurityWageBase); ssBase > wageBase {
		ssBase = wageBase
	}
	return int64(math.Round(ssBase*p.SocialSecurityRate + base*p.MedicareRate))
}
