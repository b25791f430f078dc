package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/indiatrader/core/internal/domain"
)

// restResponse is the broker microservice's envelope, the same
// success/data/error shape as the teacher's tradernet.ServiceResponse
// (internal/clients/tradernet/client.go).
type restResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// RESTAdapter implements Adapter against an opaque broker REST surface
// (spec §1 "the third-party broker REST surface (treated as an opaque
// adapter)"). It is the direct generalisation of the teacher's
// tradernet.Client, swapping its plain *http.Client for
// hashicorp/go-retryablehttp so GetHistoricalOHLCV retries transient
// failures with bounded backoff per spec §6 ("must be idempotent, may
// retry with bounded backoff"), the same retry-client pattern
// NimbleMarkets/dbn-go uses for its Databento downloads.
type RESTAdapter struct {
	baseURL string
	client  *retryablehttp.Client
	log     zerolog.Logger
}

// NewRESTAdapter builds a RESTAdapter against baseURL, authenticating with
// apiKey/apiSecret (opaque to this package — the OAuth flow itself is out
// of scope per spec §1).
func NewRESTAdapter(baseURL, apiKey, apiSecret string, log zerolog.Logger) *RESTAdapter {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = stdlog.New(io.Discard, "", stdlog.LstdFlags)
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return true, nil
		}
		return false, nil
	}

	return &RESTAdapter{
		baseURL: baseURL,
		client:  rc,
		log:     log.With().Str("client", "broker_rest").Logger(),
	}
}

func (a *RESTAdapter) do(ctx context.Context, method, endpoint string, body interface{}) (*restResponse, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &PermanentError{Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, a.baseURL+endpoint, reader)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{Err: fmt.Errorf("broker returned %d", resp.StatusCode)}
	case http.StatusTooManyRequests:
		return nil, &RateLimited{Err: fmt.Errorf("broker returned 429"), RetryAfter: 5 * time.Second}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	var result restResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if !result.Success {
		msg := "unknown broker error"
		if result.Error != nil {
			msg = *result.Error
		}
		if resp.StatusCode >= 500 {
			return nil, &TransientError{Err: fmt.Errorf("%s", msg)}
		}
		return nil, &PermanentError{Err: fmt.Errorf("%s", msg)}
	}
	return &result, nil
}

type historicalBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type historicalResponse struct {
	Bars []historicalBar `json:"bars"`
}

// GetHistoricalOHLCV fetches bars for [start, end] at barSize from the
// broker's historical endpoint. Idempotent by construction (same
// symbol/range/bar_size always yields the same request), retried
// internally via the retryablehttp client configured in NewRESTAdapter.
func (a *RESTAdapter) GetHistoricalOHLCV(ctx context.Context, symbol string, start, end time.Time, barSize string) (domain.Series, error) {
	req := map[string]interface{}{
		"symbol":   symbol,
		"start_ts": start.UTC().Unix(),
		"end_ts":   end.UTC().Unix(),
		"bar_size": barSize,
	}
	resp, err := a.do(ctx, http.MethodPost, "/api/market/historical", req)
	if err != nil {
		return domain.Series{}, err
	}

	var hist historicalResponse
	if err := json.Unmarshal(resp.Data, &hist); err != nil {
		return domain.Series{}, &PermanentError{Err: fmt.Errorf("decode historical bars: %w", err)}
	}

	bars := make([]domain.Bar, len(hist.Bars))
	for i, b := range hist.Bars {
		bars[i] = domain.Bar{
			Timestamp: time.Unix(b.Timestamp, 0).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return domain.Series{Symbol: symbol, Bars: bars}, nil
}

// PlaceOrder forwards order to the broker's order-placement endpoint,
// mirroring the teacher's tradernet.Client.PlaceOrder but over the full
// domain.Order shape instead of three bare parameters.
func (a *RESTAdapter) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	req := map[string]interface{}{
		"symbol":     order.Symbol,
		"side":       order.Side,
		"order_type": order.OrderType,
		"quantity":   order.Quantity,
	}
	if order.LimitPrice != nil {
		req["limit_price"] = *order.LimitPrice
	}
	if order.StopTrigger != nil {
		req["stop_trigger"] = *order.StopTrigger
	}
	req["client_order_id"] = order.IdempotencyKey
	if req["client_order_id"] == "" {
		req["client_order_id"] = uuid.NewString()
	}

	resp, err := a.do(ctx, http.MethodPost, "/api/trading/place-order", req)
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return "", &PermanentError{Err: fmt.Errorf("decode order result: %w", err)}
	}
	return result.OrderID, nil
}

// CancelOrder cancels a previously placed broker order.
func (a *RESTAdapter) CancelOrder(ctx context.Context, brokerOrderID string) error {
	_, err := a.do(ctx, http.MethodPost, "/api/trading/cancel-order", map[string]string{"order_id": brokerOrderID})
	return err
}

// ModifyOrder applies patch to a previously placed broker order.
func (a *RESTAdapter) ModifyOrder(ctx context.Context, brokerOrderID string, patch OrderPatch) error {
	req := map[string]interface{}{"order_id": brokerOrderID}
	if patch.Quantity != nil {
		req["quantity"] = *patch.Quantity
	}
	if patch.LimitPrice != nil {
		req["limit_price"] = *patch.LimitPrice
	}
	if patch.StopTrigger != nil {
		req["stop_trigger"] = *patch.StopTrigger
	}
	_, err := a.do(ctx, http.MethodPost, "/api/trading/modify-order", req)
	return err
}
