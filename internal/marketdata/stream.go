package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/indiatrader/core/internal/broker"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/events"
)

// StreamManager owns the long-lived subscription to the broker's
// streaming quote feed and republishes each tick onto an events.Bus after
// writing it into the cache (spec §4.5 "Live-price stream"). Reconnect
// and backoff are the adapter's concern (internal/broker.StreamAdapter);
// StreamManager's own job is dedup-by-(instrument_key, source_ts) so every
// subscriber sees at-least-once, idempotent delivery (spec §4.5
// "Subscribers are ... ; Delivery is at-least-once per subscriber;
// subscribers must be idempotent (dedupe by (instrument_key, source_ts))").
type StreamManager struct {
	adapter broker.Adapter
	cache   *Cache
	bus     *events.Bus
	log     zerolog.Logger

	mu   sync.Mutex
	seen map[string]time.Time // instrument_key -> last source_ts seen
}

// NewStreamManager wires a StreamManager over adapter, writing fresh
// quotes into cache and publishing them on bus.
func NewStreamManager(adapter broker.Adapter, cache *Cache, bus *events.Bus, log zerolog.Logger) *StreamManager {
	return &StreamManager{
		adapter: adapter,
		cache:   cache,
		bus:     bus,
		log:     log.With().Str("component", "marketdata_stream").Logger(),
		seen:    make(map[string]time.Time),
	}
}

// Start subscribes to instrumentKeys and runs the dedup-and-publish loop
// until ctx is cancelled or the stream is closed.
func (m *StreamManager) Start(ctx context.Context, instrumentKeys []string) error {
	stream, err := m.adapter.SubscribeQuotes(ctx, instrumentKeys)
	if err != nil {
		return err
	}

	go func() {
		defer stream.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-stream.Updates():
				if !ok {
					return
				}
				m.handleTick(tick)
			}
		}
	}()
	return nil
}

func (m *StreamManager) handleTick(tick broker.QuoteUpdate) {
	if m.isDuplicate(tick) {
		return
	}

	entry := domain.MarketCacheEntry{
		InstrumentKey:  tick.InstrumentKey,
		LastTradePrice: tick.LastPrice,
		Open:           tick.Open,
		High:           tick.High,
		Low:            tick.Low,
		Close:          tick.Close,
		Volume:         tick.Volume,
		ReceivedAt:     time.Now().UTC(),
		SourceAt:       tick.SourceAt,
	}
	m.cache.Put(entry)

	m.bus.Publish(events.QuoteEvent{
		InstrumentKey: tick.InstrumentKey,
		LastPrice:     tick.LastPrice,
		Open:          tick.Open,
		High:          tick.High,
		Low:           tick.Low,
		Close:         tick.Close,
		Volume:        tick.Volume,
	})
}

// isDuplicate reports whether (instrument_key, source_ts) was already
// delivered, per the at-least-once/idempotent-subscriber contract.
func (m *StreamManager) isDuplicate(tick broker.QuoteUpdate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.seen[tick.InstrumentKey]
	if ok && !tick.SourceAt.After(last) {
		return true
	}
	m.seen[tick.InstrumentKey] = tick.SourceAt
	return false
}
