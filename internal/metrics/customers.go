package metrics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/shopads/internal/models"
)

type CustomerRate struct {
	Rate  decimal.Decimal `json:"rate"`
	Count int             `json:"count"`
	Total int             `json:"total"`
}

func percent(n, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(n)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(2)
}

func split(orders []models.Order, start, end time.Time) (current, history []models.Order) {
	start, end = models.Day(start), models.Day(end)
	for _, o := range orders {
		d := models.Day(o.Date)
		switch {
		case d.Before(start):
			history = append(history, o)
		case !d.After(end):
			current = append(current, o)
		}
	}
	return current, history
}

// RepeatPurchaseRate is the share of registered customers ordering in
// [start, end] who also ordered before start. Guests are ignored.
func RepeatPurchaseRate(orders []models.Order, start, end time.Time) CustomerRate {
	current, history := split(orders, start, end)
	past := map[int64]struct{}{}
	for _, o := range history {
		if o.CustomerID != 0 {
			past[o.CustomerID] = struct{}{}
		}
	}
	seen := map[int64]struct{}{}
	repeat := 0
	for _, o := range current {
		if o.CustomerID == 0 {
			continue
		}
		if _, ok := seen[o.CustomerID]; ok {
			continue
		}
		seen[o.CustomerID] = struct{}{}
		if _, ok := past[o.CustomerID]; ok {
			repeat++
		}
	}
	return CustomerRate{Rate: percent(repeat, len(seen)), Count: repeat, Total: len(seen)}
}

// NewCustomerRate is the share of orders in [start, end] whose billing email
// never appeared before start. Orders without an email count as new.
func NewCustomerRate(orders []models.Order, start, end time.Time) CustomerRate {
	current, history := split(orders, start, end)
	past := map[string]struct{}{}
	for _, o := range history {
		if e := strings.ToLower(strings.TrimSpace(o.Email)); e != "" {
			past[e] = struct{}{}
		}
	}
	fresh := 0
	for _, o := range current {
		e := strings.ToLower(strings.TrimSpace(o.Email))
		if _, ok := past[e]; e == "" || !ok {
			fresh++
		}
	}
	return CustomerRate{Rate: percent(fresh, len(current)), Count: fresh, Total: len(current)}
}
