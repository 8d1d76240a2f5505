// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from decimal
// strings and converting between cents and dollar representations.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseSignedDecimalToCents converts a decimal dollar string to cents with
// half-up rounding on the third decimal place. It accepts both dot (12.34)
// and comma (12,34) separators and a leading sign; brokerage statement
// imports rely on the sign so capital losses carry through as negative
// amounts.
//
// Examples:
//
//	ParseSignedDecimalToCents("12.34") -> 1234, nil
//	ParseSignedDecimalToCents("12.346") -> 1235, nil (rounds up)
//	ParseSignedDecimalToCents("-320.00") -> -32000, nil
func ParseSignedDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "+")
	cents, err := parseUnsignedCents(s)
	if err != nil {
		return 0, err
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

func parseUnsignedCents(s string) (int64, error) {
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64 = 0
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 {
				if fracPart[2] >= '5' {
					fracCents++
				}
			}
		}
	}
	return iv*100 + fracCents, nil
}

// Dollars returns the dollar value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}

// MarshalJSON encodes money as a bare integer number of cents, so API
// payloads and stored rows never carry floating-point dollar values.
func (m Money) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, m.Cents, 10), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	cents, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return ErrInvalidAmount
	}
	m.Cents = cents
	return nil
}
