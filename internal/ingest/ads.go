package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/shopads/internal/models"
)

const insightsFields = "spend,impressions,clicks,reach,frequency,cpm,cpc,ctr,date_start,date_stop"

// levels maps an insights level to the id field identifying its breakdown.
var levels = map[string]string{
	"account":  "",
	"campaign": "campaign_id",
	"adset":    "adset_id",
	"ad":       "ad_id",
}

// ValidLevel reports whether level is a known insights level. Empty means
// account.
func ValidLevel(level string) bool {
	if level == "" {
		return true
	}
	_, ok := levels[level]
	return ok
}

// AdsFetcher reads daily insights for one ad account.
type AdsFetcher struct {
	client    *Client
	accountID string
	clock     func() time.Time
	log       zerolog.Logger
}

func NewAdsFetcher(client *Client, accountID string, log zerolog.Logger) *AdsFetcher {
	return &AdsFetcher{
		client:    client,
		accountID: NormalizeAccountID(accountID),
		clock:     time.Now,
		log:       log.With().Str("component", "ads").Logger(),
	}
}

// WithClock overrides the clock for testing.
func (f *AdsFetcher) WithClock(clock func() time.Time) *AdsFetcher {
	f.clock = clock
	return f
}

func NormalizeAccountID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}

// GraphBaseURL is the versioned Graph root.
func GraphBaseURL(host, version string) string {
	return strings.TrimRight(host, "/") + "/" + version
}

// ClampRange moves an end date on or after today back to yesterday, since
// today's insights are incomplete. A start past the clamped end becomes
// end minus seven days.
func ClampRange(from, to, now time.Time) (time.Time, time.Time) {
	from, to = models.Day(from), models.Day(to)
	today := models.Day(now)
	if !to.Before(today) {
		to = today.AddDate(0, 0, -1)
	}
	if from.After(to) {
		from = to.AddDate(0, 0, -7)
	}
	return from, to
}

type insightRow struct {
	DateStart   string     `json:"date_start"`
	Spend       flexNumber `json:"spend"`
	Impressions flexNumber `json:"impressions"`
	Clicks      flexNumber `json:"clicks"`
	Reach       flexNumber `json:"reach"`
	Frequency   flexNumber `json:"frequency"`
	CPM         flexNumber `json:"cpm"`
	CPC         flexNumber `json:"cpc"`
	CTR         flexNumber `json:"ctr"`
	CampaignID  string     `json:"campaign_id"`
	AdsetID     string     `json:"adset_id"`
	AdID        string     `json:"ad_id"`
}

func (r insightRow) breakdown(level string) string {
	switch level {
	case "campaign":
		return r.CampaignID
	case "adset":
		return r.AdsetID
	case "ad":
		return r.AdID
	}
	return ""
}

// Fetch returns one record per day (per breakdown id below account level).
// An empty data array is a successful empty result.
func (f *AdsFetcher) Fetch(ctx context.Context, from, to time.Time, level string) ([]models.AdsDaily, error) {
	if level == "" {
		level = "account"
	}
	idField, ok := levels[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	from, to = ClampRange(from, to, f.clock())

	fields := insightsFields
	if idField != "" {
		fields += "," + idField
	}
	tr, _ := json.Marshal(map[string]string{
		"since": from.Format(models.DateLayout),
		"until": to.Format(models.DateLayout),
	})
	params := url.Values{}
	params.Set("fields", fields)
	params.Set("time_range", string(tr))
	params.Set("level", level)
	params.Set("time_increment", "1")
	params.Set("limit", "1000")

	var out struct {
		Data []insightRow `json:"data"`
	}
	if err := f.client.Request(ctx, Call{Method: http.MethodGet, Endpoint: f.accountID + "/insights", Params: params}, &out); err != nil {
		return nil, err
	}

	rows := make([]models.AdsDaily, 0, len(out.Data))
	for _, r := range out.Data {
		d, err := time.Parse(models.DateLayout, strings.TrimSpace(r.DateStart))
		if err != nil {
			f.log.Debug().Str("date_start", r.DateStart).Msg("skipping insight row without date")
			continue
		}
		rows = append(rows, models.AdsDaily{
			Date:        d,
			Breakdown:   r.breakdown(level),
			Spend:       nonNegative(r.Spend.Decimal()),
			Impressions: r.Impressions.Int(),
			Clicks:      r.Clicks.Int(),
			Reach:       r.Reach.Int(),
			Frequency:   r.Frequency.Decimal(),
			CTR:         r.CTR.Decimal(),
			CPM:         r.CPM.Decimal(),
			CPC:         r.CPC.Decimal(),
		})
	}
	f.log.Info().Int("rows", len(rows)).Str("level", level).Msg("insights fetched")
	return rows, nil
}

type AccountInfo struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	AccountStatus int64           `json:"account_status"`
	Currency      string          `json:"currency"`
	AmountSpent   decimal.Decimal `json:"amount_spent"`
}

func (f *AdsFetcher) AccountInfo(ctx context.Context) (AccountInfo, error) {
	params := url.Values{}
	params.Set("fields", "id,name,account_status,currency,amount_spent")
	var out struct {
		ID            string     `json:"id"`
		Name          string     `json:"name"`
		AccountStatus flexNumber `json:"account_status"`
		Currency      string     `json:"currency"`
		AmountSpent   flexNumber `json:"amount_spent"`
	}
	if err := f.client.Request(ctx, Call{Method: http.MethodGet, Endpoint: f.accountID, Params: params}, &out); err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		ID:            out.ID,
		Name:          out.Name,
		AccountStatus: out.AccountStatus.Int(),
		Currency:      out.Currency,
		AmountSpent:   out.AmountSpent.Decimal(),
	}, nil
}

// Probe checks the account is reachable with the current token.
func (f *AdsFetcher) Probe(ctx context.Context) error {
	params := url.Values{}
	params.Set("fields", "id,name")
	return f.client.Request(ctx, Call{Method: http.MethodGet, Endpoint: f.accountID, Params: params, Timeout: ProbeTimeout}, nil)
}
