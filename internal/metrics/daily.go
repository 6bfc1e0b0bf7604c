package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/shopads/internal/models"
)

// Allocation spreads a period total over days. It is an approximation: the
// period totals are not tracked per day upstream.
type Allocation func(total decimal.Decimal, days int) decimal.Decimal

// EvenAllocation gives each merged day the same share.
func EvenAllocation(total decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(days)))
}

var one = decimal.NewFromInt(1)

type dayAgg struct {
	revenue     decimal.Decimal
	orders      int
	spend       decimal.Decimal
	impressions int64
	clicks      int64
}

// MergeDaily full-outer-joins orders and ads by calendar date, one row per
// date ascending. Missing sides are zero. shippingTotal and feeTotal are
// period totals spread with e.Allocate.
func (e *Engine) MergeDaily(orders []models.Order, ads []models.AdsDaily, shippingTotal, feeTotal decimal.Decimal) []models.DailyMerged {
	days := map[string]*dayAgg{}
	get := func(key string) *dayAgg {
		d, ok := days[key]
		if !ok {
			d = &dayAgg{revenue: decimal.Zero, spend: decimal.Zero}
			days[key] = d
		}
		return d
	}
	for _, o := range orders {
		d := get(models.Day(o.Date).Format(models.DateLayout))
		d.revenue = d.revenue.Add(o.Total)
		d.orders++
	}
	for _, a := range ads {
		d := get(models.Day(a.Date).Format(models.DateLayout))
		d.spend = d.spend.Add(a.Spend)
		d.impressions += a.Impressions
		d.clicks += a.Clicks
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	alloc := e.Allocate
	if alloc == nil {
		alloc = EvenAllocation
	}
	shipShare := alloc(shippingTotal, len(keys))
	feeShare := alloc(feeTotal, len(keys))

	out := make([]models.DailyMerged, 0, len(keys))
	for _, k := range keys {
		d := days[k]
		cogs := e.COGS(d.revenue)
		tax := e.BusinessTax(d.revenue)
		costs := TotalCosts(cogs, shipShare, feeShare, d.spend, tax)
		out = append(out, models.DailyMerged{
			Date:        k,
			Revenue:     d.revenue,
			Orders:      d.orders,
			AdSpend:     d.spend,
			Impressions: d.impressions,
			Clicks:      d.clicks,
			ROAS:        ROAS(d.revenue, d.spend),
			COGS:        cogs,
			Shipping:    shipShare,
			PaymentFee:  feeShare,
			Tax:         tax,
			TotalCosts:  costs,
			NetProfit:   d.revenue.Sub(costs),
		})
	}
	return out
}

// ROAS is revenue over spend, with spend floored at 1 so zero-spend days do
// not divide by zero.
func ROAS(revenue, spend decimal.Decimal) decimal.Decimal {
	if spend.LessThan(one) {
		spend = one
	}
	return revenue.Div(spend).Round(2)
}

// Daily prices the given orders and merges them with ads.
func (e *Engine) Daily(orders []models.Order, ads []models.AdsDaily) []models.DailyMerged {
	shipping := models.MethodCounts{}
	for _, o := range orders {
		shipping.Add(o.ShippingMethod)
	}
	_, shipTotal := e.ShippingCosts(shipping)
	_, feeTotal := e.PaymentFees(orders)
	return e.MergeDaily(orders, ads, shipTotal, feeTotal)
}
