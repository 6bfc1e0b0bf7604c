package metrics

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/shopads/internal/models"
	"github.com/AngelCh415/shopads/internal/store"
)

var ErrBadQuery = errors.New("bad query")

// Service answers analysis queries against a session's store.
type Service struct {
	st     *store.MemoryStore
	engine *Engine
}

func NewService(st *store.MemoryStore, engine *Engine) *Service {
	return &Service{st: st, engine: engine}
}


// window reads from/to, defaulting to the last ingest window.
func (s *Service) window(v url.Values) (time.Time, time.Time, error) {
	w := s.st.Window()
	from, to := w.From, w.To
	if q := strings.TrimSpace(v.Get("from")); q != "" {
		t, err := time.Parse(models.DateLayout, q)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from %q", ErrBadQuery, q)
		}
		from = t
	}
	if q := strings.TrimSpace(v.Get("to")); q != "" {
		t, err := time.Parse(models.DateLayout, q)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to %q", ErrBadQuery, q)
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from after to", ErrBadQuery)
	}
	return from, to, nil
}

func (s *Service) Summary(v url.Values) (Summary, error) {
	from, to, err := s.window(v)
	if err != nil {
		return Summary{}, err
	}
	history := s.st.Orders(time.Time{}, to)
	return s.engine.Summarize(from, to, history, s.st.Ads(from, to)), nil
}

func (s *Service) Daily(v url.Values) ([]models.DailyMerged, error) {
	from, to, err := s.window(v)
	if err != nil {
		return nil, err
	}
	rows := s.engine.Daily(s.st.Orders(from, to), s.st.Ads(from, to))
	limit, offset := clampLimitOffset(atoiDef(v.Get("limit"), 0), atoiDef(v.Get("offset"), 0), len(rows))
	return paginate(rows, limit, offset), nil
}

type ShippingRow struct {
	Method string `json:"method"`
	ShippingCost
}

func (s *Service) Shipping(v url.Values) ([]ShippingRow, error) {
	from, to, err := s.window(v)
	if err != nil {
		return nil, err
	}
	_, counts := s.st.MethodCounts(from, to)
	detail, _ := s.engine.ShippingCosts(counts)
	rows := make([]ShippingRow, 0, len(detail))
	for _, m := range counts.Keys() {
		rows = append(rows, ShippingRow{Method: m, ShippingCost: detail[m]})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	limit, offset := clampLimitOffset(atoiDef(v.Get("limit"), 0), atoiDef(v.Get("offset"), 0), len(rows))
	return paginate(rows, limit, offset), nil
}

type PaymentRow struct {
	Method string `json:"method"`
	PaymentFee
}

func (s *Service) Payments(v url.Values) ([]PaymentRow, error) {
	from, to, err := s.window(v)
	if err != nil {
		return nil, err
	}
	detail, _ := s.engine.PaymentFees(s.st.Orders(from, to))
	rows := make([]PaymentRow, 0, len(detail))
	for m, d := range detail {
		rows = append(rows, PaymentRow{Method: m, PaymentFee: d})
	}
	// mayor monto primero
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].TotalAmount.Cmp(rows[j].TotalAmount); c != 0 {
			return c > 0
		}
		return rows[i].Method < rows[j].Method
	})
	limit, offset := clampLimitOffset(atoiDef(v.Get("limit"), 0), atoiDef(v.Get("offset"), 0), len(rows))
	return paginate(rows, limit, offset), nil
}

// DayReport is the merged record for a single date; empty when the store
// has nothing for it.
func (s *Service) DayReport(day time.Time) []models.DailyMerged {
	return s.engine.Daily(s.st.Orders(day, day), s.st.Ads(day, day))
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	} // tope sano
	if offset > n {
		offset = n
	}
	return limit, offset
}
