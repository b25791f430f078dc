package orders

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/marketdata"
)

func newTestRouter(t *testing.T) (*Router, *marketdata.Cache) {
	t.Helper()
	cache := marketdata.New(time.Minute, 16)
	r := New(100000, nil, cache, nil, Limits{
		PaperSlippageBps: 10,
		MaxOrderQuantity: 1000,
		MaxPositionValue: 1_000_000,
	}, zerolog.Nop())
	return r, cache
}

func seedQuote(cache *marketdata.Cache, symbol string, last float64) {
	cache.Put(domain.MarketCacheEntry{
		InstrumentKey:  symbol,
		LastTradePrice: last,
		ReceivedAt:     time.Now(),
		SourceAt:       time.Now(),
		TTLDeadline:    time.Now().Add(time.Minute),
	})
}

func TestSubmitOrderPaperMarketBuyAppliesSlippage(t *testing.T) {
	r, cache := newTestRouter(t)
	seedQuote(cache, "RELIANCE", 2500)

	order := domain.Order{
		Symbol:    "RELIANCE",
		Side:      domain.SideBuy,
		OrderType: domain.OrderMarket,
		Quantity:  10,
	}

	got, err := r.SubmitOrder(context.Background(), order, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, got.State)

	want := 2500 * (1 + 10.0/10000)
	require.Len(t, got.Fills, 1)
	assert.InDelta(t, want, got.Fills[0].Price, 1e-6)

	holdings := r.Holdings()
	require.Len(t, holdings, 1)
	assert.Equal(t, "RELIANCE", holdings[0].Symbol)
	assert.InDelta(t, 10, holdings[0].Quantity, 1e-9)
}

func TestSubmitOrderRejectsUnknownSymbol(t *testing.T) {
	r, _ := newTestRouter(t)
	r2 := New(100000, nil, marketdata.New(time.Minute, 8), rejectAll{}, Limits{
		MaxOrderQuantity: 1000,
		MaxPositionValue: 1_000_000,
	}, zerolog.Nop())
	_ = r

	_, err := r2.SubmitOrder(context.Background(), domain.Order{
		Symbol:    "NOPE",
		Side:      domain.SideBuy,
		OrderType: domain.OrderMarket,
		Quantity:  1,
	}, "")
	require.Error(t, err)
}

type rejectAll struct{}

func (rejectAll) Known(string) bool { return false }

func TestSubmitOrderRejectsQuantityOverLimit(t *testing.T) {
	r, cache := newTestRouter(t)
	seedQuote(cache, "TCS", 900)

	atLimit := domain.Order{Symbol: "TCS", Side: domain.SideBuy, OrderType: domain.OrderMarket, Quantity: 1000}
	got, err := r.SubmitOrder(context.Background(), atLimit, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, got.State)

	overLimit := domain.Order{Symbol: "TCS", Side: domain.SideBuy, OrderType: domain.OrderMarket, Quantity: 1001}
	_, err = r.SubmitOrder(context.Background(), overLimit, "")
	require.Error(t, err)
}

func TestSubmitOrderIdempotencyKeyDedupes(t *testing.T) {
	r, cache := newTestRouter(t)
	seedQuote(cache, "INFY", 1500)

	order := domain.Order{Symbol: "INFY", Side: domain.SideBuy, OrderType: domain.OrderMarket, Quantity: 5}

	first, err := r.SubmitOrder(context.Background(), order, "key-1")
	require.NoError(t, err)

	second, err := r.SubmitOrder(context.Background(), order, "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Len(t, r.Holdings(), 1)
	assert.InDelta(t, 5, r.Holdings()[0].Quantity, 1e-9)
}

func TestRequestModeChangeRequiresConfirmation(t *testing.T) {
	r, _ := newTestRouter(t)

	mode, token, err := r.RequestModeChange(domain.ModeLive, "")
	require.Error(t, err)
	assert.Equal(t, domain.ModePaper, mode)
	assert.NotEmpty(t, token)
	assert.Equal(t, domain.ModePaper, r.Mode())

	mode, _, err = r.RequestModeChange(domain.ModeLive, token)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, mode)
	assert.Equal(t, domain.ModeLive, r.Mode())
}

func TestRequestModeChangeLiveToPaperNeedsNoConfirmation(t *testing.T) {
	r, _ := newTestRouter(t)
	_, token, _ := r.RequestModeChange(domain.ModeLive, "")
	_, _, _ = r.RequestModeChange(domain.ModeLive, token)
	require.Equal(t, domain.ModeLive, r.Mode())

	mode, _, err := r.RequestModeChange(domain.ModePaper, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ModePaper, mode)
}

func TestSubmitOrderLimitBuyWaitsForCross(t *testing.T) {
	r, cache := newTestRouter(t)
	seedQuote(cache, "HDFC", 1600)

	limit := 1500.0
	order := domain.Order{
		Symbol:     "HDFC",
		Side:       domain.SideBuy,
		OrderType:  domain.OrderLimit,
		Quantity:   3,
		LimitPrice: &limit,
	}

	got, err := r.SubmitOrder(context.Background(), order, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderWorking, got.State)
	assert.Empty(t, r.Holdings())
}
