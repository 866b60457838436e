package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatBRL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "R$ 0,00"},
		{"5", "R$ 5,00"},
		{"1234.5", "R$ 1.234,50"},
		{"1000000", "R$ 1.000.000,00"},
		{"-200", "-R$ 200,00"},
		{"99.99", "R$ 99,99"},
	}
	for _, tc := range cases {
		if got := FormatBRL(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("FormatBRL(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
