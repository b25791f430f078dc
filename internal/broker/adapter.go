package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/indiatrader/core/internal/domain"
)

// CombinedAdapter satisfies Adapter by pairing a RESTAdapter (historical
// data + order placement) with a StreamAdapter (live quotes) against the
// same broker — the split the teacher itself makes between
// clients/tradernet/client.go (REST) and
// clients/tradernet/websocket_client.go (streaming).
type CombinedAdapter struct {
	*RESTAdapter
	Stream *StreamAdapter
}

// NewCombinedAdapter wires a REST and a streaming adapter against the same
// broker credentials/config.Config fields.
func NewCombinedAdapter(restBaseURL, streamURL, apiKey, apiSecret string, log zerolog.Logger) *CombinedAdapter {
	return &CombinedAdapter{
		RESTAdapter: NewRESTAdapter(restBaseURL, apiKey, apiSecret, log),
		Stream:      NewStreamAdapter(streamURL, log),
	}
}

// SubscribeQuotes delegates to the streaming adapter.
func (a *CombinedAdapter) SubscribeQuotes(ctx context.Context, instrumentKeys []string) (QuoteStream, error) {
	return a.Stream.SubscribeQuotes(ctx, instrumentKeys)
}

var _ Adapter = (*CombinedAdapter)(nil)

// staticHistory wraps a pre-fetched map of series, used to satisfy spec
// §1's "Historical OHLCV fetch is treated as an injected data source": in
// tests and in batch/offline contexts the core is handed a HistoricalSource
// that doesn't depend on a live broker connection at all.
type staticHistory struct {
	series map[string]domain.Series
}

// HistoricalSource is the narrow slice of Adapter the feature/model
// pipeline actually depends on, so Core can be constructed with an
// injected source (e.g. a fixture, or a warmed on-disk cache) instead of
// a live broker connection (spec §1 "Historical OHLCV fetch is treated as
// an injected data source").
type HistoricalSource interface {
	GetHistoricalOHLCV(ctx context.Context, symbol string, start, end time.Time, barSize string) (domain.Series, error)
}

// NewStaticHistory builds a HistoricalSource over a fixed map, for tests
// and offline replays.
func NewStaticHistory(series map[string]domain.Series) HistoricalSource {
	return &staticHistory{series: series}
}

func (s *staticHistory) GetHistoricalOHLCV(_ context.Context, symbol string, _, _ time.Time, _ string) (domain.Series, error) {
	series, ok := s.series[symbol]
	if !ok {
		return domain.Series{}, &PermanentError{Err: errNoFixture(symbol)}
	}
	return series, nil
}

type fixtureErr string

func (e fixtureErr) Error() string { return string(e) }

func errNoFixture(symbol string) error {
	return fixtureErr("no fixture series for symbol " + symbol)
}
