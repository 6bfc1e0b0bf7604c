package ingest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/AngelCh415/shopads/internal/config"
	"github.com/AngelCh415/shopads/internal/metrics"
	"github.com/AngelCh415/shopads/internal/models"
	"github.com/AngelCh415/shopads/internal/store"
	"github.com/AngelCh415/shopads/internal/utils"
)

var (
	ErrInvalidRange       = errors.New("invalid date range")
	ErrSinkNotConfigured  = errors.New("sink not configured")
	errSinkRejectedExport = errors.New("export sink non-2xx")
)

type ETLConfig struct {
	// HistoryDays extends the orders fetch before the window so customer
	// rates have something to compare against.
	HistoryDays int
	Sink        config.SinkConfig
	Backoff     utils.Backoff
}

// ETL runs the sequential orders-then-ads ingest into a session store and
// exports merged days to the sink.
type ETL struct {
	orders *OrdersFetcher
	ads    *AdsFetcher
	st     *store.MemoryStore
	report *metrics.Service
	httpc  HTTPClient
	cfg    ETLConfig
	clock  func() time.Time
	log    zerolog.Logger
}

// NewETL wires the pipeline. A nil fetcher marks that side unconfigured.
func NewETL(orders *OrdersFetcher, ads *AdsFetcher, st *store.MemoryStore, report *metrics.Service, httpc HTTPClient, cfg ETLConfig, log zerolog.Logger) *ETL {
	if cfg.Backoff.MaxRetries() == 0 {
		cfg.Backoff = utils.DefaultBackoff()
	}
	if httpc == nil {
		httpc = NewHTTPClient(DefaultTimeout)
	}
	return &ETL{
		orders: orders,
		ads:    ads,
		st:     st,
		report: report,
		httpc:  httpc,
		cfg:    cfg,
		clock:  time.Now,
		log:    log.With().Str("component", "etl").Logger(),
	}
}

func (e *ETL) Orders() *OrdersFetcher { return e.orders }
func (e *ETL) Ads() *AdsFetcher       { return e.ads }

type RunResult struct {
	From            string              `json:"from"`
	To              string              `json:"to"`
	Level           string              `json:"level"`
	Orders          int                 `json:"orders"`
	HistoryOrders   int                 `json:"history_orders"`
	AdsRows         int                 `json:"ads_rows"`
	PaymentMethods  models.MethodCounts `json:"payment_methods"`
	ShippingMethods models.MethodCounts `json:"shipping_methods"`
	Skipped         []string            `json:"skipped,omitempty"`
}

// Run fetches orders then ads for [from, to] and replaces the store
// snapshot. Orders stay stored when the ads fetch fails afterwards.
func (e *ETL) Run(ctx context.Context, from, to time.Time, level string) (RunResult, error) {
	from, to = models.Day(from), models.Day(to)
	if from.After(to) {
		return RunResult{}, fmt.Errorf("%w: from %s after to %s", ErrInvalidRange, from.Format(models.DateLayout), to.Format(models.DateLayout))
	}
	if !ValidLevel(level) {
		return RunResult{}, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	if level == "" {
		level = "account"
	}
	res := RunResult{
		From:  from.Format(models.DateLayout),
		To:    to.Format(models.DateLayout),
		Level: level,
	}

	if e.orders == nil {
		e.log.Warn().Msg("storefront not configured, skipping orders")
		res.Skipped = append(res.Skipped, "orders")
		e.st.ReplaceOrders(nil)
	} else {
		start := from.AddDate(0, 0, -e.cfg.HistoryDays)
		out, err := e.orders.Fetch(ctx, start, to, nil)
		if err != nil {
			return res, err
		}
		e.st.ReplaceOrders(out.Orders)
	}
	e.st.SetWindow(store.Window{From: from, To: to, Level: level, UpdatedAt: e.clock()})

	var adsErr error
	if e.ads == nil {
		e.log.Warn().Msg("ads account not configured, skipping insights")
		res.Skipped = append(res.Skipped, "ads")
		e.st.ReplaceAds(nil)
	} else if rows, err := e.ads.Fetch(ctx, from, to, level); err != nil {
		adsErr = err
		e.st.ReplaceAds(nil)
	} else {
		e.st.ReplaceAds(rows)
		res.AdsRows = len(rows)
	}

	res.Orders = len(e.st.Orders(from, to))
	res.HistoryOrders = len(e.st.AllOrders()) - res.Orders
	res.PaymentMethods, res.ShippingMethods = e.st.MethodCounts(from, to)

	ev := e.log.Info()
	if adsErr != nil {
		ev = e.log.Warn().Err(adsErr)
	}
	ev.Int("orders", res.Orders).Int("ads_rows", res.AdsRows).Msg("ingest complete")
	return res, adsErr
}

// ExportDay posts the merged record for date to the sink, signed with
// HMAC-SHA256 in X-Signature. Returns the number of rows sent.
func (e *ETL) ExportDay(ctx context.Context, date time.Time) (int, error) {
	if e.cfg.Sink.URL == "" || e.cfg.Sink.Secret == "" {
		return 0, ErrSinkNotConfigured
	}
	rows := e.report.DayReport(models.Day(date))
	if len(rows) == 0 {
		return 0, nil
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return 0, err
	}
	sig := Sign(b, e.cfg.Sink.Secret)

	err = e.cfg.Backoff.Do(ctx, func(i int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Sink.URL, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", sig)
		resp, err := e.httpc.Do(req)
		if err != nil {
			e.log.Warn().Err(err).Int("attempt", i+1).Msg("export failed")
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			e.log.Warn().Int("status", resp.StatusCode).Int("attempt", i+1).Msg("export rejected")
			return fmt.Errorf("%w: %d", errSinkRejectedExport, resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Sign is the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
