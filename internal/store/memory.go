package store

import (
	"sort"
	"sync"
	"time"

	"github.com/AngelCh415/shopads/internal/models"
)

type adsKey struct {
	Date      time.Time
	Breakdown string
}

// Window describes the last ingest held by the store.
type Window struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Level     string    `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryStore holds one session's orders and ads snapshot.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[int64]models.Order // idempotencia por order id
	ads    map[adsKey]models.AdsDaily
	window Window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[int64]models.Order),
		ads:    make(map[adsKey]models.AdsDaily),
	}
}

// ReplaceOrders swaps the order snapshot. Orders with a repeated id keep the
// first copy, which matches the newest-first listing order.
func (s *MemoryStore) ReplaceOrders(orders []models.Order) {
	next := make(map[int64]models.Order, len(orders))
	for _, o := range orders {
		if _, ok := next[o.ID]; ok {
			continue
		}
		next[o.ID] = o
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = next
}

func (s *MemoryStore) ReplaceAds(rows []models.AdsDaily) {
	next := make(map[adsKey]models.AdsDaily, len(rows))
	for _, a := range rows {
		next[adsKey{Date: models.Day(a.Date), Breakdown: a.Breakdown}] = a
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ads = next
}

func (s *MemoryStore) SetWindow(w Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = w
}

func (s *MemoryStore) Window() Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

func (s *MemoryStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders) == 0 && len(s.ads) == 0
}

// AllOrders returns every stored order, including history fetched ahead of
// the window, oldest first.
func (s *MemoryStore) AllOrders() []models.Order {
	return s.Orders(time.Time{}, time.Time{})
}

// Orders returns orders whose calendar date is in [from, to], oldest first.
// A zero bound is open.
func (s *MemoryStore) Orders(from, to time.Time) []models.Order {
	s.mu.RLock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if inRange(models.Day(o.Date), from, to) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()

	// orden determinista
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) Ads(from, to time.Time) []models.AdsDaily {
	s.mu.RLock()
	out := make([]models.AdsDaily, 0, len(s.ads))
	for k, a := range s.ads {
		if inRange(k.Date, from, to) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Breakdown < out[j].Breakdown
	})
	return out
}

// MethodCounts tallies payment and shipping labels over the window's orders.
func (s *MemoryStore) MethodCounts(from, to time.Time) (payment, shipping models.MethodCounts) {
	payment, shipping = models.MethodCounts{}, models.MethodCounts{}
	for _, o := range s.Orders(from, to) {
		payment.Add(o.PaymentMethod)
		shipping.Add(o.ShippingMethod)
	}
	return payment, shipping
}

func inRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(models.Day(from)) {
		return false
	}
	if !to.IsZero() && d.After(models.Day(to)) {
		return false
	}
	return true
}
