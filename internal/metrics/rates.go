// Package metrics turns fetched orders and ads spend into cost and
// profitability figures. Nothing here does I/O or fails.
package metrics

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rate maps a label pattern to a value.
type Rate struct {
	Pattern string
	Value   decimal.Decimal
}

// RateTable is searched in declaration order.
type RateTable []Rate

// Lookup matches label against each pattern case-insensitively, in either
// direction of substring containment. First match wins; no match or an
// empty label is zero.
func (t RateTable) Lookup(label string) decimal.Decimal {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return decimal.Zero
	}
	for _, r := range t {
		p := strings.ToLower(r.Pattern)
		if p == "" {
			continue
		}
		if strings.Contains(l, p) || strings.Contains(p, l) {
			return r.Value
		}
	}
	return decimal.Zero
}

func rate(pattern, value string) Rate {
	return Rate{Pattern: pattern, Value: decimal.RequireFromString(value)}
}

// DefaultShippingRates is NT$ per order. Specific carriers come before the
// generic home-delivery entry.
func DefaultShippingRates() RateTable {
	return RateTable{
		rate("7-11", "60"),
		rate("全家", "69"),
		rate("萊爾富", "60"),
		rate("OK超商", "60"),
		rate("宅配", "180"),
		rate("黑貓", "180"),
		rate("新竹物流", "180"),
		rate("郵局", "80"),
		rate("自取", "0"),
	}
}

// DefaultPaymentRates is the fee as a percentage of the order amount.
func DefaultPaymentRates() RateTable {
	return RateTable{
		rate("信用卡", "2.5725"),
		rate("LINE Pay", "3.15"),
		rate("街口", "2.625"),
		rate("Apple Pay", "2.5725"),
		rate("ATM", "1.05"),
		rate("超商代碼", "2.1"),
		rate("貨到付款", "0"),
	}
}
