package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/AngelCh415/shopads/internal/auth"
	"github.com/AngelCh415/shopads/internal/config"
	"github.com/AngelCh415/shopads/internal/ingest"
	"github.com/AngelCh415/shopads/internal/metrics"
	"github.com/AngelCh415/shopads/internal/models"
	"github.com/AngelCh415/shopads/internal/session"
	"github.com/AngelCh415/shopads/internal/utils"
)

var errBadInput = errors.New("bad input")

type router struct {
	reg   *session.Registry
	log   zerolog.Logger
	clock func() time.Time
}

func NewRouter(log zerolog.Logger, reg *session.Registry, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	rt := &router{reg: reg, log: log, clock: time.Now}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ready", "sessions": reg.Len()})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.Post("/ingest/run", rt.ingestRun)
	mux.Post("/export/run", rt.exportRun)

	mux.Route("/analysis", func(r chi.Router) {
		r.Get("/summary", rt.query(func(s *session.Session, r *http.Request) (any, error) { return s.Metrics.Summary(r.URL.Query()) }))
		r.Get("/daily", rt.query(func(s *session.Session, r *http.Request) (any, error) { return s.Metrics.Daily(r.URL.Query()) }))
		r.Get("/shipping", rt.query(func(s *session.Session, r *http.Request) (any, error) { return s.Metrics.Shipping(r.URL.Query()) }))
		r.Get("/payments", rt.query(func(s *session.Session, r *http.Request) (any, error) { return s.Metrics.Payments(r.URL.Query()) }))
	})

	mux.Route("/auth", func(r chi.Router) {
		r.Get("/token", rt.tokenStatus)
		r.Post("/token/exchange", rt.tokenExchange)
		r.Delete("/token", rt.tokenClear)
		r.Get("/token/debug", rt.tokenDebug)
		r.Get("/oauth/url", rt.oauthURL)
		r.Get("/oauth/callback", rt.oauthCallback)
	})

	mux.Get("/session/config", rt.sessionStatus)
	mux.Put("/session/config", rt.sessionConfigure)
	mux.Delete("/session/config", rt.sessionReset)
	mux.Get("/session/check", rt.sessionCheck)

	return mux
}

func (rt *router) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := rt.reg.Get(r.Header.Get(session.Header))
	if err != nil {
		writeError(w, err, nil)
		return nil, false
	}
	return s, true
}

func (rt *router) query(fn func(*session.Session, *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := rt.sessionFor(w, r)
		if !ok {
			return
		}
		v, err := fn(s, r)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		writeJSON(w, v)
	}
}

// ingestRun defaults to the seven days ending yesterday.
func (rt *router) ingestRun(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	to := models.Day(rt.clock()).AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -6)
	var err error
	if v := q.Get("to"); v != "" {
		if to, err = parseDate(v); err != nil {
			writeError(w, err, nil)
			return
		}
	}
	if v := q.Get("from"); v != "" {
		if from, err = parseDate(v); err != nil {
			writeError(w, err, nil)
			return
		}
	}

	res, err := s.ETL.Run(r.Context(), from, to, q.Get("level"))
	if err != nil {
		var partial any
		if res.From != "" {
			partial = res
		}
		writeError(w, err, partial)
		return
	}
	writeJSON(w, res)
}

func (rt *router) exportRun(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("date")
	if q == "" {
		writeError(w, errors.Join(errBadInput, errors.New("date required (YYYY-MM-DD)")), nil)
		return
	}
	t, err := parseDate(q)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	n, err := s.ETL.ExportDay(r.Context(), t)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, map[string]any{"exported": n})
}

func (rt *router) tokenStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.Tokens.Status(r.Context()))
}

func (rt *router) tokenExchange(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Join(errBadInput, err), nil)
		return
	}
	if _, err := s.Tokens.ExchangeShortLived(r.Context(), body.Token); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, s.Tokens.Status(r.Context()))
}

func (rt *router) tokenClear(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	if err := s.Tokens.Clear(r.Context()); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) tokenDebug(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	if s.Graph == nil {
		writeError(w, auth.ErrUnconfigured, nil)
		return
	}
	tok, err := s.Tokens.ValidToken(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	info, err := s.Graph.Debug(r.Context(), tok)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, info)
}

func (rt *router) oauthURL(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	if s.OAuth == nil {
		writeError(w, auth.ErrUnconfigured, nil)
		return
	}
	u, state := s.OAuth.AuthorizationURL()
	writeJSON(w, map[string]string{"url": u, "state": state})
}

func (rt *router) oauthCallback(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	if s.OAuth == nil {
		writeError(w, auth.ErrUnconfigured, nil)
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, errors.Join(errBadInput, errors.New(e+": "+q.Get("error_description"))), nil)
		return
	}
	if q.Get("code") == "" {
		writeError(w, errors.Join(errBadInput, errors.New("code required")), nil)
		return
	}
	if _, err := s.OAuth.Complete(r.Context(), q.Get("code"), q.Get("state")); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, s.Tokens.Status(r.Context()))
}

type sessionView struct {
	ID         string    `json:"id"`
	Storefront bool      `json:"storefront_configured"`
	Ads        bool      `json:"ads_configured"`
	OAuth      bool      `json:"oauth_configured"`
	HasData    bool      `json:"has_data"`
	CreatedAt  time.Time `json:"created_at"`
}

func viewOf(s *session.Session) sessionView {
	return sessionView{
		ID:         s.ID,
		Storefront: s.StorefrontConfigured(),
		Ads:        s.AdsConfigured(),
		OAuth:      s.OAuth != nil,
		HasData:    !s.Store.Empty(),
		CreatedAt:  s.CreatedAt,
	}
}

func (rt *router) sessionStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, viewOf(s))
}

func (rt *router) sessionConfigure(w http.ResponseWriter, r *http.Request) {
	var o config.Overrides
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, errors.Join(errBadInput, err), nil)
		return
	}
	s, err := rt.reg.Configure(r.Header.Get(session.Header), o)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	rt.log.Info().Str("session", s.ID).Bool("storefront", s.StorefrontConfigured()).Bool("ads", s.AdsConfigured()).Msg("session reconfigured")
	writeJSON(w, viewOf(s))
}

// sessionReset drops overrides and ingested data; the next request rebuilds
// the session from the environment.
func (rt *router) sessionReset(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	rt.reg.Drop(s.ID)
	rt.log.Info().Str("session", s.ID).Msg("session reset")
	w.WriteHeader(http.StatusNoContent)
}

type probe struct {
	Configured bool   `json:"configured"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

func probeOf(configured bool, err error) probe {
	p := probe{Configured: configured, OK: configured && err == nil}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

// sessionCheck probes both upstreams with the session's credentials.
func (rt *router) sessionCheck(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.sessionFor(w, r)
	if !ok {
		return
	}
	out := struct {
		Storefront probe               `json:"storefront"`
		Ads        probe               `json:"ads"`
		Account    *ingest.AccountInfo `json:"account,omitempty"`
	}{}

	if f := s.ETL.Orders(); f != nil {
		out.Storefront = probeOf(true, f.TestConnection(r.Context()))
	}
	if f := s.ETL.Ads(); f != nil {
		err := f.Probe(r.Context())
		if err == nil {
			var info ingest.AccountInfo
			if info, err = f.AccountInfo(r.Context()); err == nil {
				out.Account = &info
			}
		}
		out.Ads = probeOf(true, err)
	}
	writeJSON(w, out)
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, v)
	if err != nil {
		return time.Time{}, errors.Join(errBadInput, errors.New("bad date "+v+" (YYYY-MM-DD)"))
	}
	return t, nil
}

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Result any    `json:"result,omitempty"`
}

// statusOf maps domain errors to HTTP codes: bad input 400, auth 401,
// upstream 502.
func statusOf(err error) (int, string) {
	var authErr *auth.AuthError
	var apiErr *ingest.APIError
	switch {
	case errors.Is(err, errBadInput),
		errors.Is(err, session.ErrBadSessionID),
		errors.Is(err, metrics.ErrBadQuery),
		errors.Is(err, ingest.ErrInvalidRange),
		errors.Is(err, ingest.ErrInvalidLevel),
		errors.Is(err, ingest.ErrSinkNotConfigured),
		errors.Is(err, auth.ErrInvalidState):
		return http.StatusBadRequest, "bad_request"
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, string(authErr.Kind)
	case errors.Is(err, auth.ErrUnconfigured):
		return http.StatusUnauthorized, string(auth.KindUnconfigured)
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, string(apiErr.Kind)
	}
	return http.StatusInternalServerError, ""
}

func writeError(w http.ResponseWriter, err error, result any) {
	code, kind := statusOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody{Error: err.Error(), Kind: kind, Result: result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
