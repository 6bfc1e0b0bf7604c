package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/shopads/internal/models"
)

// Summary is the period roll-up handed to the presentation layer.
type Summary struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Revenue     decimal.Decimal `json:"revenue"`
	Orders      int             `json:"orders"`
	AOV         decimal.Decimal `json:"aov"`
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
	// NetMargin is a percentage of revenue.
	NetMargin decimal.Decimal `json:"net_margin"`

	ShippingDetail map[string]ShippingCost `json:"shipping_detail"`
	PaymentDetail  map[string]PaymentFee   `json:"payment_detail"`

	RepeatPurchase CustomerRate `json:"repeat_purchase"`
	NewCustomers   CustomerRate `json:"new_customers"`
}

// Summarize rolls up the orders and ads in [from, to]. history may include
// orders before from; it only feeds the customer rates.
func (e *Engine) Summarize(from, to time.Time, history []models.Order, ads []models.AdsDaily) Summary {
	orders, _ := split(history, from, to)

	shipping := models.MethodCounts{}
	for _, o := range orders {
		shipping.Add(o.ShippingMethod)
	}
	shipDetail, shipTotal := e.ShippingCosts(shipping)
	payDetail, feeTotal := e.PaymentFees(orders)

	s := Summary{
		From:           models.Day(from).Format(models.DateLayout),
		To:             models.Day(to).Format(models.DateLayout),
		Revenue:        Revenue(orders),
		Orders:         len(orders),
		AdSpend:        decimal.Zero,
		Shipping:       shipTotal,
		PaymentFee:     feeTotal,
		ShippingDetail: shipDetail,
		PaymentDetail:  payDetail,
		RepeatPurchase: RepeatPurchaseRate(history, from, to),
		NewCustomers:   NewCustomerRate(history, from, to),
	}
	for _, a := range ads {
		s.AdSpend = s.AdSpend.Add(a.Spend)
		s.Impressions += a.Impressions
		s.Clicks += a.Clicks
	}
	if s.Orders > 0 {
		s.AOV = s.Revenue.Div(decimal.NewFromInt(int64(s.Orders))).Round(2)
	}
	s.ROAS = ROAS(s.Revenue, s.AdSpend)
	s.COGS = e.COGS(s.Revenue)
	s.Tax = e.BusinessTax(s.Revenue)
	s.TotalCosts = TotalCosts(s.COGS, s.Shipping, s.PaymentFee, s.AdSpend, s.Tax)
	s.NetProfit = s.Revenue.Sub(s.TotalCosts)
	if s.Revenue.IsPositive() {
		s.NetMargin = s.NetProfit.Mul(hundred).Div(s.Revenue).Round(2)
	}
	return s
}
