package ingest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AngelCh415/shopads/internal/config"
	"github.com/AngelCh415/shopads/internal/models"
)

// the REST API refuses larger pages
const maxPerPage = 100

// OrdersFetcher pages through the storefront orders listing.
type OrdersFetcher struct {
	client    *Client
	perPage   int
	maxOrders int
	statuses  []string
	log       zerolog.Logger
}

func NewOrdersFetcher(client *Client, cfg config.WooConfig, log zerolog.Logger) *OrdersFetcher {
	f := &OrdersFetcher{
		client:    client,
		perPage:   cfg.PerPage,
		maxOrders: cfg.MaxOrders,
		statuses:  cfg.StatusList(),
		log:       log.With().Str("component", "orders").Logger(),
	}
	if f.perPage <= 0 || f.perPage > maxPerPage {
		f.perPage = maxPerPage
	}
	if f.maxOrders <= 0 {
		f.maxOrders = 1000
	}
	return f
}

// WooBaseURL is the REST root for a store URL and API version.
func WooBaseURL(storeURL, version string) string {
	if version == "" {
		version = "v3"
	}
	return strings.TrimRight(storeURL, "/") + "/wp-json/wc/" + version
}

type OrdersResult struct {
	Orders          []models.Order      `json:"orders"`
	PaymentMethods  models.MethodCounts `json:"payment_methods"`
	ShippingMethods models.MethodCounts `json:"shipping_methods"`
}

func newOrdersResult() OrdersResult {
	return OrdersResult{
		Orders:          []models.Order{},
		PaymentMethods:  models.MethodCounts{},
		ShippingMethods: models.MethodCounts{},
	}
}

func (r *OrdersResult) add(o models.Order) {
	r.Orders = append(r.Orders, o)
	r.PaymentMethods.Add(o.PaymentMethod)
	r.ShippingMethods.Add(o.ShippingMethod)
}

type wcOrder struct {
	ID             int64      `json:"id"`
	DateCreated    string     `json:"date_created"`
	DateCreatedGMT string     `json:"date_created_gmt"`
	Total          flexNumber `json:"total"`
	Status         string     `json:"status"`
	CustomerID     int64      `json:"customer_id"`
	PaymentMethod  string     `json:"payment_method_title"`
	Billing        struct {
		Email string `json:"email"`
	} `json:"billing"`
	ShippingLines []struct {
		MethodTitle string `json:"method_title"`
	} `json:"shipping_lines"`
}

const wcDateLayout = "2006-01-02T15:04:05"

func (w wcOrder) normalize() models.Order {
	d, err := time.Parse(wcDateLayout, strings.TrimSpace(w.DateCreated))
	if err != nil {
		d, _ = time.Parse(wcDateLayout, strings.TrimSpace(w.DateCreatedGMT))
	}
	shipping := ""
	if len(w.ShippingLines) > 0 {
		shipping = w.ShippingLines[0].MethodTitle
	}
	return models.Order{
		ID:             w.ID,
		Date:           d,
		Total:          nonNegative(w.Total.Decimal()),
		Status:         strings.TrimSpace(w.Status),
		CustomerID:     w.CustomerID,
		Email:          strings.TrimSpace(w.Billing.Email),
		PaymentMethod:  coalesce(w.PaymentMethod, models.UnknownMethod),
		ShippingMethod: coalesce(shipping, models.UnknownMethod),
	}
}

// Fetch lists orders created in [from, to]. A failure on the first page
// fails the fetch with an empty result; a failure on a later page ends
// pagination and keeps what was collected. statuses nil uses the configured
// filter.
func (f *OrdersFetcher) Fetch(ctx context.Context, from, to time.Time, statuses []string) (OrdersResult, error) {
	if statuses == nil {
		statuses = f.statuses
	}
	base := url.Values{}
	base.Set("after", from.Format(models.DateLayout)+"T00:00:00")
	base.Set("before", to.Format(models.DateLayout)+"T23:59:59")
	base.Set("per_page", strconv.Itoa(f.perPage))
	base.Set("orderby", "date")
	base.Set("order", "desc")
	if len(statuses) > 0 {
		base.Set("status", strings.Join(statuses, ","))
	}

	res := newOrdersResult()
	for page := 1; len(res.Orders) < f.maxOrders; page++ {
		params := cloneValues(base)
		params.Set("page", strconv.Itoa(page))

		var raw []wcOrder
		err := f.client.Request(ctx, Call{Method: http.MethodGet, Endpoint: "orders", Params: params}, &raw)
		if err != nil {
			if page == 1 {
				return newOrdersResult(), err
			}
			f.log.Warn().Err(err).Int("page", page).Int("collected", len(res.Orders)).
				Msg("page failed, treating as end of data")
			break
		}
		if len(raw) == 0 {
			break
		}
		for _, r := range raw {
			if len(res.Orders) >= f.maxOrders {
				break
			}
			res.add(r.normalize())
		}
	}
	f.log.Info().Int("orders", len(res.Orders)).Msg("orders fetched")
	return res, nil
}

// TestConnection asks for a single order.
func (f *OrdersFetcher) TestConnection(ctx context.Context) error {
	params := url.Values{}
	params.Set("per_page", "1")
	var raw []wcOrder
	return f.client.Request(ctx, Call{Method: http.MethodGet, Endpoint: "orders", Params: params, Timeout: ProbeTimeout}, &raw)
}
