package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownMethod labels orders whose payment or shipping method is missing upstream.
const UnknownMethod = "unknown"

type CredentialSource string

const (
	SourceEnv       CredentialSource = "env"
	SourceCache     CredentialSource = "cache"
	SourceExchanged CredentialSource = "exchanged"
)

// Credential is a bearer token for the ads platform. Refreshing replaces the
// value; it is never mutated in place.
type Credential struct {
	Token     string
	TokenType string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Source    CredentialSource
}

func (c Credential) Valid() bool {
	return c.Token != "" && c.ExpiresAt.After(c.IssuedAt)
}

// Stale reports whether the credential is inside the refresh buffer.
func (c Credential) Stale(now time.Time, buffer time.Duration) bool {
	return !now.Before(c.ExpiresAt.Add(-buffer))
}

type Order struct {
	ID             int64           `json:"order_id"`
	Date           time.Time       `json:"date"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	CustomerID     int64           `json:"customer_id"`
	Email          string          `json:"email,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	ShippingMethod string          `json:"shipping_method"`
}

type AdsDaily struct {
	Date        time.Time       `json:"date"`
	Breakdown   string          `json:"breakdown,omitempty"`
	Spend       decimal.Decimal `json:"spend"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Reach       int64           `json:"reach"`
	Frequency   decimal.Decimal `json:"frequency"`
	CTR         decimal.Decimal `json:"ctr"`
	CPM         decimal.Decimal `json:"cpm"`
	CPC         decimal.Decimal `json:"cpc"`
}

// MethodCounts maps an upstream free-text method label to an order count.
type MethodCounts map[string]int

func (m MethodCounts) Add(label string) { m[label]++ }

func (m MethodCounts) Total() int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

func (m MethodCounts) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type DailyMerged struct {
	Date        string          `json:"date"`
	Revenue     decimal.Decimal `json:"revenue"`
	Orders      int             `json:"orders"`
	AdSpend     decimal.Decimal `json:"ad_spend"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	ROAS        decimal.Decimal `json:"roas"`
	COGS        decimal.Decimal `json:"cogs"`
	Shipping    decimal.Decimal `json:"shipping"`
	PaymentFee  decimal.Decimal `json:"payment_fee"`
	Tax         decimal.Decimal `json:"tax"`
	TotalCosts  decimal.Decimal `json:"total_costs"`
	NetProfit   decimal.Decimal `json:"net_profit"`
}

const DateLayout = "2006-01-02"

// Day truncates t to its calendar date at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
