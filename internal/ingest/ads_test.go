package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adsNow = time.Date(2025, 10, 10, 15, 0, 0, 0, time.UTC)

func newAdsFetcher(baseURL string, tokens TokenSource) *AdsFetcher {
	c := newTestClient(GraphBaseURL(baseURL, "v23.0"), &sleepRecorder{}, WithAuthenticator(BearerParam{Tokens: tokens}))
	return NewAdsFetcher(c, "123", zerolog.Nop()).WithClock(func() time.Time { return adsNow })
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestClampRange(t *testing.T) {
	cases := []struct {
		name             string
		from, to         string
		wantFrom, wantTo string
	}{
		{"past window untouched", "2025-10-01", "2025-10-05", "2025-10-01", "2025-10-05"},
		{"today becomes yesterday", "2025-10-01", "2025-10-10", "2025-10-01", "2025-10-09"},
		{"future becomes yesterday", "2025-10-01", "2025-10-20", "2025-10-01", "2025-10-09"},
		{"start after clamped end", "2025-10-10", "2025-10-10", "2025-10-02", "2025-10-09"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, to := ClampRange(day(tc.from), day(tc.to), adsNow)
			assert.Equal(t, tc.wantFrom, f.Format("2006-01-02"))
			assert.Equal(t, tc.wantTo, to.Format("2006-01-02"))
		})
	}
}

func TestNormalizeAccountID(t *testing.T) {
	assert.Equal(t, "act_123", NormalizeAccountID("123"))
	assert.Equal(t, "act_123", NormalizeAccountID(" act_123 "))
	assert.Equal(t, "", NormalizeAccountID(""))
}

func TestAdsFetchParsesInsights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v23.0/act_123/insights", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "tok", q.Get("access_token"))
		assert.Equal(t, "account", q.Get("level"))
		assert.Equal(t, "1", q.Get("time_increment"))
		assert.Equal(t, "1000", q.Get("limit"))
		assert.Equal(t, insightsFields, q.Get("fields"))

		var tr map[string]string
		assert.NoError(t, json.Unmarshal([]byte(q.Get("time_range")), &tr))
		assert.Equal(t, map[string]string{"since": "2025-10-01", "until": "2025-10-09"}, tr)

		fmt.Fprint(w, `{"data":[
			{"date_start":"2025-10-01","date_stop":"2025-10-01","spend":"523.17","impressions":"10400","clicks":"211",
			 "reach":"8000","frequency":"1.3","cpm":"50.3","cpc":"2.48","ctr":"2.03"},
			{"date_start":"2025-10-02","date_stop":"2025-10-02","spend":12.5,"impressions":900,"clicks":null,
			 "reach":"n/a"}
		]}`)
	}))
	defer srv.Close()

	rows, err := newAdsFetcher(srv.URL, &fakeTokens{current: "tok"}).Fetch(context.Background(), day("2025-10-01"), day("2025-10-10"), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, day("2025-10-01"), rows[0].Date)
	assert.Equal(t, "523.17", rows[0].Spend.String())
	assert.Equal(t, int64(10400), rows[0].Impressions)
	assert.Equal(t, int64(211), rows[0].Clicks)
	assert.Equal(t, int64(8000), rows[0].Reach)
	assert.Equal(t, "2.03", rows[0].CTR.String())
	assert.Empty(t, rows[0].Breakdown)

	assert.Equal(t, "12.5", rows[1].Spend.String())
	assert.Equal(t, int64(900), rows[1].Impressions)
	assert.Equal(t, int64(0), rows[1].Clicks)
	assert.Equal(t, int64(0), rows[1].Reach)
	assert.True(t, rows[1].CPC.IsZero())
}

func TestAdsFetchCampaignLevelRecordsBreakdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "campaign", q.Get("level"))
		assert.Equal(t, insightsFields+",campaign_id", q.Get("fields"))
		fmt.Fprint(w, `{"data":[
			{"date_start":"2025-10-01","campaign_id":"c1","spend":"10"},
			{"date_start":"2025-10-01","campaign_id":"c2","spend":"20"}
		]}`)
	}))
	defer srv.Close()

	rows, err := newAdsFetcher(srv.URL, &fakeTokens{current: "tok"}).Fetch(context.Background(), day("2025-10-01"), day("2025-10-01"), "campaign")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c1", rows[0].Breakdown)
	assert.Equal(t, "c2", rows[1].Breakdown)
}

func TestAdsFetchEmptyDataIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	rows, err := newAdsFetcher(srv.URL, &fakeTokens{current: "tok"}).Fetch(context.Background(), day("2025-10-01"), day("2025-10-02"), "ad")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAdsFetchRejectsUnknownLevel(t *testing.T) {
	_, err := newAdsFetcher("http://127.0.0.1:1", &fakeTokens{current: "tok"}).Fetch(context.Background(), day("2025-10-01"), day("2025-10-02"), "region")
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestAdsAccountInfoAndProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v23.0/act_123", r.URL.Path)
		fmt.Fprint(w, `{"id":"act_123","name":"Shop","account_status":1,"currency":"TWD","amount_spent":"98765"}`)
	}))
	defer srv.Close()

	f := newAdsFetcher(srv.URL, &fakeTokens{current: "tok"})
	info, err := f.AccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Shop", info.Name)
	assert.Equal(t, int64(1), info.AccountStatus)
	assert.Equal(t, "TWD", info.Currency)
	assert.Equal(t, "98765", info.AmountSpent.String())

	require.NoError(t, f.Probe(context.Background()))
}
