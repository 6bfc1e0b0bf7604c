package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/shopads/internal/config"
	"github.com/AngelCh415/shopads/internal/metrics"
	"github.com/AngelCh415/shopads/internal/models"
	"github.com/AngelCh415/shopads/internal/store"
	"github.com/AngelCh415/shopads/internal/utils"
)

func wooServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[
			{"id":1,"date_created":"2025-10-02T10:00:00","total":"1000","customer_id":7,"payment_method_title":"信用卡",
			 "billing":{"email":"a@x.tw"},"shipping_lines":[{"method_title":"全家"}]},
			{"id":2,"date_created":"2025-10-03T11:00:00","total":"500","customer_id":0,"payment_method_title":"信用卡",
			 "billing":{"email":""},"shipping_lines":[{"method_title":"宅配"}]},
			{"id":3,"date_created":"2025-09-20T11:00:00","total":"300","customer_id":7,"payment_method_title":"ATM",
			 "billing":{"email":"a@x.tw"},"shipping_lines":[{"method_title":"全家"}]}
		]`))
	}))
}

func graphServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"Unsupported get request","code":100}}`))
			return
		}
		w.Write([]byte(`{"data":[
			{"date_start":"2025-10-02","spend":"200","impressions":"1000","clicks":"10"},
			{"date_start":"2025-10-04","spend":"100","impressions":"500","clicks":"5"}
		]}`))
	}))
}

type etlFixture struct {
	etl *ETL
	st  *store.MemoryStore
}

func newETLFixture(wooURL, graphURL string, cfg ETLConfig) etlFixture {
	st := store.NewMemoryStore()
	report := metrics.NewService(st, metrics.NewEngine(decimal.NewFromInt(50), decimal.RequireFromString("0.05")))

	var orders *OrdersFetcher
	if wooURL != "" {
		orders = newOrdersFetcher(wooURL)
	}
	var ads *AdsFetcher
	if graphURL != "" {
		ads = newAdsFetcher(graphURL, &fakeTokens{current: "tok"})
	}
	return etlFixture{etl: NewETL(orders, ads, st, report, nil, cfg, zerolog.Nop()), st: st}
}

func TestETLRunStoresOrdersAndAds(t *testing.T) {
	woo := wooServer(t)
	defer woo.Close()
	graph := graphServer(t, http.StatusOK)
	defer graph.Close()

	fx := newETLFixture(woo.URL, graph.URL, ETLConfig{HistoryDays: 30})
	res, err := fx.etl.Run(context.Background(), day("2025-10-01"), day("2025-10-07"), "")
	require.NoError(t, err)

	assert.Equal(t, "account", res.Level)
	assert.Equal(t, 2, res.Orders)
	assert.Equal(t, 1, res.HistoryOrders)
	assert.Equal(t, 2, res.AdsRows)
	assert.Equal(t, models.MethodCounts{"信用卡": 2}, res.PaymentMethods)
	assert.Equal(t, models.MethodCounts{"全家": 1, "宅配": 1}, res.ShippingMethods)

	w := fx.st.Window()
	assert.Equal(t, day("2025-10-01"), w.From)
	assert.Equal(t, day("2025-10-07"), w.To)
	assert.Len(t, fx.st.Ads(time.Time{}, time.Time{}), 2)
}

func TestETLRunAdsFailureKeepsOrders(t *testing.T) {
	woo := wooServer(t)
	defer woo.Close()
	graph := graphServer(t, http.StatusBadRequest)
	defer graph.Close()

	fx := newETLFixture(woo.URL, graph.URL, ETLConfig{})
	res, err := fx.etl.Run(context.Background(), day("2025-10-01"), day("2025-10-07"), "account")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "Unsupported get request", apiErr.Message)
	assert.Equal(t, 2, res.Orders)
	assert.Len(t, fx.st.Orders(day("2025-10-01"), day("2025-10-07")), 2)
	assert.Empty(t, fx.st.Ads(time.Time{}, time.Time{}))
}

func TestETLRunSkipsUnconfiguredSides(t *testing.T) {
	fx := newETLFixture("", "", ETLConfig{})
	res, err := fx.etl.Run(context.Background(), day("2025-10-01"), day("2025-10-07"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "ads"}, res.Skipped)
	assert.True(t, fx.st.Empty())
}

func TestETLRunRejectsInvertedRange(t *testing.T) {
	fx := newETLFixture("", "", ETLConfig{})
	_, err := fx.etl.Run(context.Background(), day("2025-10-07"), day("2025-10-01"), "")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestETLRunRejectsUnknownLevelBeforeFetching(t *testing.T) {
	var hits int32
	woo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[]`))
	}))
	defer woo.Close()

	fx := newETLFixture(woo.URL, "", ETLConfig{})
	_, err := fx.etl.Run(context.Background(), day("2025-10-01"), day("2025-10-07"), "region")
	assert.ErrorIs(t, err, ErrInvalidLevel)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestExportDaySignsPayload(t *testing.T) {
	woo := wooServer(t)
	defer woo.Close()

	var calls int32
	var body []byte
	var sig string
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	fx := newETLFixture(woo.URL, "", ETLConfig{
		Sink:    config.SinkConfig{URL: sink.URL, Secret: "s3cret"},
		Backoff: utils.NewBackoff(time.Millisecond, time.Millisecond, 3),
	})
	_, err := fx.etl.Run(context.Background(), day("2025-10-01"), day("2025-10-07"), "")
	require.NoError(t, err)

	n, err := fx.etl.ExportDay(context.Background(), day("2025-10-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, Sign(body, "s3cret"), sig)

	var rows []models.DailyMerged
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-10-02", rows[0].Date)
	assert.Equal(t, "1000", rows[0].Revenue.String())
}

func TestExportDayNothingToSend(t *testing.T) {
	fx := newETLFixture("", "", ETLConfig{Sink: config.SinkConfig{URL: "http://127.0.0.1:1", Secret: "x"}})
	n, err := fx.etl.ExportDay(context.Background(), day("2025-10-02"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestExportDayRequiresSink(t *testing.T) {
	fx := newETLFixture("", "", ETLConfig{})
	_, err := fx.etl.ExportDay(context.Background(), day("2025-10-02"))
	assert.ErrorIs(t, err, ErrSinkNotConfigured)
}

func TestSignIsHexHMAC(t *testing.T) {
	sig := Sign([]byte("payload"), "k")
	assert.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
	assert.NotEqual(t, sig, Sign([]byte("payload"), "other"))
}
