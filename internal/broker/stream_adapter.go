package broker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// Reconnection constants mirror the teacher's MarketStatusWebSocket
// (internal/clients/tradernet/websocket_client.go): exponential backoff
// capped at a maximum delay (spec §4.5 "auto-reconnects with exponential
// backoff capped at a maximum delay; on reconnect, subscriptions are
// replayed").
const (
	streamDialTimeout      = 30 * time.Second
	streamWriteWait        = 10 * time.Second
	baseReconnectDelay     = 2 * time.Second
	maxReconnectDelay      = 5 * time.Minute
	streamUpdateBufferSize = 256
)

// wireTick is the broker's wire format for one streaming quote update.
type wireTick struct {
	InstrumentKey string  `json:"instrument_key"`
	LTP           float64 `json:"ltp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	SourceTS      int64   `json:"source_ts"`
}

// streamHTTPClient forces HTTP/1.1 for the WebSocket upgrade handshake,
// the same workaround the teacher documents against Cloudflare negotiating
// HTTP/2 via ALPN (createHTTP1Client in websocket_client.go).
func streamHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   streamDialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:   &tls.Config{NextProtos: []string{"http/1.1"}},
			ForceAttemptHTTP2: false,
		},
	}
}

// wsQuoteStream implements QuoteStream over the long-lived connection
// managed by StreamAdapter.
type wsQuoteStream struct {
	updates chan QuoteUpdate
	closeFn func() error
}

func (s *wsQuoteStream) Updates() <-chan QuoteUpdate { return s.updates }
func (s *wsQuoteStream) Close() error                { return s.closeFn() }

// StreamAdapter implements the streaming half of Adapter.SubscribeQuotes
// against the broker's WebSocket quote feed. Grounded directly on
// MarketStatusWebSocket's Connect/readMessages/reconnectLoop shape, with
// the teacher's market-status payload swapped for per-instrument quote
// ticks and the event-bus emit swapped for the QuoteUpdate channel spec
// §4.5 describes as "a fan-out bus".
type StreamAdapter struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	stopped  bool
	stopChan chan struct{}
}

// NewStreamAdapter builds a StreamAdapter against the broker's streaming
// URL. The URL and any session parameters are opaque to this package
// (spec §1 broker OAuth/session handling is out of scope).
func NewStreamAdapter(url string, log zerolog.Logger) *StreamAdapter {
	return &StreamAdapter{
		url:        url,
		httpClient: streamHTTPClient(),
		log:        log.With().Str("client", "broker_stream").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// SubscribeQuotes dials the stream, subscribes to instrumentKeys, and
// returns a QuoteStream whose Updates channel is fed by a background read
// loop with automatic reconnect-and-resubscribe.
func (a *StreamAdapter) SubscribeQuotes(ctx context.Context, instrumentKeys []string) (QuoteStream, error) {
	out := make(chan QuoteUpdate, streamUpdateBufferSize)

	if err := a.connect(ctx, instrumentKeys); err != nil {
		a.log.Warn().Err(err).Msg("initial stream connect failed, starting reconnect loop")
		go a.reconnectLoop(instrumentKeys, out)
		return &wsQuoteStream{updates: out, closeFn: a.stop}, nil
	}

	go a.readLoop(instrumentKeys, out)
	return &wsQuoteStream{updates: out, closeFn: a.stop}, nil
}

func (a *StreamAdapter) connect(ctx context.Context, instrumentKeys []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, streamDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, a.url, &websocket.DialOptions{HTTPClient: a.httpClient})
	if err != nil {
		return &TransientError{Err: fmt.Errorf("dial stream: %w", err)}
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	a.conn = conn
	a.cancel = connCancel

	writeCtx, writeCancel := context.WithTimeout(connCtx, streamWriteWait)
	defer writeCancel()
	payload, _ := json.Marshal(map[string]interface{}{"subscribe": instrumentKeys})
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		a.conn = nil
		return &TransientError{Err: fmt.Errorf("subscribe: %w", err)}
	}
	return nil
}

func (a *StreamAdapter) readLoop(instrumentKeys []string, out chan<- QuoteUpdate) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}

	ctx := context.Background()
	for {
		select {
		case <-a.stopChan:
			return
		default:
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			a.log.Warn().Err(err).Msg("stream read failed, reconnecting")
			go a.reconnectLoop(instrumentKeys, out)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var tick wireTick
		if err := json.Unmarshal(data, &tick); err != nil {
			a.log.Warn().Err(err).Msg("malformed stream tick, skipping")
			continue
		}

		update := QuoteUpdate{
			InstrumentKey: tick.InstrumentKey,
			LastPrice:     tick.LTP,
			Open:          tick.Open,
			High:          tick.High,
			Low:           tick.Low,
			Close:         tick.Close,
			Volume:        tick.Volume,
			SourceAt:      time.Unix(tick.SourceTS, 0).UTC(),
		}
		select {
		case out <- update:
		default:
			// slow consumer: drop the oldest buffered tick rather than
			// block the read loop (spec §5 "conflated delivery").
			select {
			case <-out:
			default:
			}
			select {
			case out <- update:
			default:
			}
		}
	}
}

func (a *StreamAdapter) reconnectLoop(instrumentKeys []string, out chan<- QuoteUpdate) {
	attempt := 0
	for {
		select {
		case <-a.stopChan:
			return
		default:
		}

		attempt++
		delay := backoff(attempt)
		select {
		case <-time.After(delay):
		case <-a.stopChan:
			return
		}

		if err := a.connect(context.Background(), instrumentKeys); err != nil {
			a.log.Warn().Err(err).Int("attempt", attempt).Msg("stream reconnect failed")
			continue
		}
		a.log.Info().Int("attempt", attempt).Msg("stream reconnected")
		go a.readLoop(instrumentKeys, out)
		return
	}
}

func backoff(attempt int) time.Duration {
	d := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(maxReconnectDelay) {
		d = float64(maxReconnectDelay)
	}
	return time.Duration(d)
}

func (a *StreamAdapter) stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true
	close(a.stopChan)
	if a.cancel != nil {
		a.cancel()
	}
	if a.conn != nil {
		return a.conn.Close(websocket.StatusNormalClosure, "")
	}
	return nil
}
