package ingest

import (
	"strings"

	"github.com/shopspring/decimal"
)

// flexNumber accepts a JSON number, a numeric string or null. Anything it
// cannot read degrades to zero instead of failing the whole payload.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		s = ""
	}
	*n = flexNumber(strings.Trim(s, `"`))
	return nil
}

func (n flexNumber) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(string(n)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (n flexNumber) Int() int64 {
	return n.Decimal().IntPart()
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func coalesce(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}
