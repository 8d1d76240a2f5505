package core

import "testing"

func TestParseSignedDecimalToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"12.345", 1234, true},
		{"12.346", 1235, true},
		{"50000", 5000000, true},
		{"-12.34", -1234, true},
		{"-0.01", -1, true},
		{"0", 0, true},
		{"+7", 700, true},
		{"", 0, false},
		{"--5", 0, false},
		{"loss", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseSignedDecimalToCents(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseSignedDecimalToCents(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseSignedDecimalToCents(%q) expected error", tc.in)
		}
	}
}

func TestMoneyDollars(t *testing.T) {
	if got := (Money{Cents: 1234}).Dollars(); got != 12.34 {
		t.Errorf("Dollars() = %v, want 12.34", got)
	}
	if got := (Money{Cents: -50}).Dollars(); got != -0.5 {
		t.Errorf("Dollars() = %v, want -0.5", got)
	}
}
