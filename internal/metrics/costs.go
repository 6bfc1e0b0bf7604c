package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/shopads/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Engine applies the rate tables and cost percentages.
type Engine struct {
	Shipping RateTable
	Payment  RateTable
	COGSRate decimal.Decimal // percent of revenue
	TaxRate  decimal.Decimal // fraction of revenue
	Allocate Allocation
}

func NewEngine(cogsPercent, taxRate decimal.Decimal) *Engine {
	return &Engine{
		Shipping: DefaultShippingRates(),
		Payment:  DefaultPaymentRates(),
		COGSRate: cogsPercent,
		TaxRate:  taxRate,
		Allocate: EvenAllocation,
	}
}

type ShippingCost struct {
	Count        int             `json:"count"`
	CostPerOrder decimal.Decimal `json:"cost_per_order"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// ShippingCosts prices each shipping label by its per-order rate.
func (e *Engine) ShippingCosts(freq models.MethodCounts) (map[string]ShippingCost, decimal.Decimal) {
	out := make(map[string]ShippingCost, len(freq))
	total := decimal.Zero
	for method, count := range freq {
		per := e.Shipping.Lookup(method)
		cost := per.Mul(decimal.NewFromInt(int64(count)))
		out[method] = ShippingCost{Count: count, CostPerOrder: per, TotalCost: cost}
		total = total.Add(cost)
	}
	return out, total
}

type PaymentFee struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	FeeRate     decimal.Decimal `json:"fee_rate"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
}

// PaymentFees groups orders by payment label. Amounts are summed and
// rounded to cents before the percentage fee is applied.
func (e *Engine) PaymentFees(orders []models.Order) (map[string]PaymentFee, decimal.Decimal) {
	type acc struct {
		count  int
		amount decimal.Decimal
	}
	groups := map[string]*acc{}
	for _, o := range orders {
		g, ok := groups[o.PaymentMethod]
		if !ok {
			g = &acc{amount: decimal.Zero}
			groups[o.PaymentMethod] = g
		}
		g.count++
		g.amount = g.amount.Add(o.Total)
	}

	out := make(map[string]PaymentFee, len(groups))
	total := decimal.Zero
	for method, g := range groups {
		amount := g.amount.Round(2)
		r := e.Payment.Lookup(method)
		fee := amount.Mul(r).Div(hundred)
		out[method] = PaymentFee{Count: g.count, TotalAmount: amount, FeeRate: r, FeeAmount: fee}
		total = total.Add(fee)
	}
	return out, total
}

// COGS estimates cost of goods as pct percent of revenue.
func COGS(revenue, pct decimal.Decimal) decimal.Decimal {
	return revenue.Mul(pct).Div(hundred)
}

func BusinessTax(revenue, rate decimal.Decimal) decimal.Decimal {
	return revenue.Mul(rate)
}

func TotalCosts(cogs, shipping, fee, adSpend, tax decimal.Decimal) decimal.Decimal {
	return cogs.Add(shipping).Add(fee).Add(adSpend).Add(tax)
}

func NetProfit(revenue, cogs, shipping, fee, adSpend, tax decimal.Decimal) decimal.Decimal {
	return revenue.Sub(TotalCosts(cogs, shipping, fee, adSpend, tax))
}

func (e *Engine) COGS(revenue decimal.Decimal) decimal.Decimal { return COGS(revenue, e.COGSRate) }

func (e *Engine) BusinessTax(revenue decimal.Decimal) decimal.Decimal {
	return BusinessTax(revenue, e.TaxRate)
}

// Revenue sums order totals.
func Revenue(orders []models.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range orders {
		sum = sum.Add(o.Total)
	}
	return sum
}
