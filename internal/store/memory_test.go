package store

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/shopads/internal/models"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestReplaceOrdersKeepsFirstCopy(t *testing.T) {
	s := NewMemoryStore()
	s.ReplaceOrders([]models.Order{
		{ID: 1, Date: day("2025-10-02"), Total: decimal.NewFromInt(10)},
		{ID: 1, Date: day("2025-10-01"), Total: decimal.NewFromInt(99)},
		{ID: 2, Date: day("2025-10-01"), Total: decimal.NewFromInt(5)},
	})

	all := s.AllOrders()
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].ID)
	assert.Equal(t, "10", all[1].Total.String())
}

func TestReplaceOrdersIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	batch := []models.Order{{ID: 1, Date: day("2025-10-01")}, {ID: 2, Date: day("2025-10-02")}}
	s.ReplaceOrders(batch)
	s.ReplaceOrders(batch)
	assert.Len(t, s.AllOrders(), 2)

	s.ReplaceOrders(nil)
	assert.Empty(t, s.AllOrders())
}

func TestOrdersRangeAndOrdering(t *testing.T) {
	s := NewMemoryStore()
	s.ReplaceOrders([]models.Order{
		{ID: 3, Date: day("2025-10-03").Add(20 * time.Hour)},
		{ID: 2, Date: day("2025-10-01")},
		{ID: 1, Date: day("2025-10-01")},
		{ID: 4, Date: day("2025-10-05")},
	})

	got := s.Orders(day("2025-10-01"), day("2025-10-03"))
	ids := make([]int64, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Len(t, s.Orders(day("2025-10-04"), time.Time{}), 1)
}

func TestAdsKeyedByDateAndBreakdown(t *testing.T) {
	s := NewMemoryStore()
	s.ReplaceAds([]models.AdsDaily{
		{Date: day("2025-10-01"), Breakdown: "c2", Spend: decimal.NewFromInt(1)},
		{Date: day("2025-10-01"), Breakdown: "c1", Spend: decimal.NewFromInt(2)},
		{Date: day("2025-10-01"), Breakdown: "c1", Spend: decimal.NewFromInt(3)},
	})
	rows := s.Ads(time.Time{}, time.Time{})
	require.Len(t, rows, 2)
	assert.Equal(t, "c1", rows[0].Breakdown)
	assert.Equal(t, "3", rows[0].Spend.String())
}

func TestMethodCountsAndWindow(t *testing.T) {
	s := NewMemoryStore()
	assert.True(t, s.Empty())
	s.ReplaceOrders([]models.Order{
		{ID: 1, Date: day("2025-10-01"), PaymentMethod: "ATM", ShippingMethod: "全家"},
		{ID: 2, Date: day("2025-10-01"), PaymentMethod: "ATM", ShippingMethod: models.UnknownMethod},
		{ID: 3, Date: day("2025-09-01"), PaymentMethod: "信用卡", ShippingMethod: "全家"},
	})
	s.SetWindow(Window{From: day("2025-10-01"), To: day("2025-10-02"), Level: "ad"})

	pay, ship := s.MethodCounts(day("2025-10-01"), day("2025-10-02"))
	assert.Equal(t, models.MethodCounts{"ATM": 2}, pay)
	assert.Equal(t, models.MethodCounts{"全家": 1, models.UnknownMethod: 1}, ship)
	assert.Equal(t, "ad", s.Window().Level)
	assert.False(t, s.Empty())
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.ReplaceOrders([]models.Order{{ID: int64(i), Date: day("2025-10-01")}})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Orders(time.Time{}, time.Time{})
		}()
	}
	wg.Wait()
	assert.Len(t, s.AllOrders(), 1)
}
