// Package broker defines the adapter boundary to the (out-of-scope, spec
// §1) broker's authentication, REST and streaming surfaces: the core only
// ever talks to the small Adapter interface below, never to a concrete
// broker SDK directly, so the HTTP-framing and OAuth details the spec
// excludes stay behind this seam (spec §6 "External interfaces").
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/indiatrader/core/internal/domain"
)

// TransientError wraps a retryable upstream failure (spec §6 "well-typed
// error returns": TransientError, PermanentError, AuthError, RateLimited).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "broker: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a non-retryable upstream failure.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "broker: permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// AuthError indicates the broker rejected credentials; out of scope to
// recover from here (spec §1 "broker's authentication/OAuth flow" is an
// external collaborator), only classified so callers can stop retrying.
type AuthError struct{ Err error }

func (e *AuthError) Error() string { return "broker: auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// RateLimited indicates the broker asked the caller to back off.
type RateLimited struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string { return "broker: rate limited: " + e.Err.Error() }
func (e *RateLimited) Unwrap() error { return e.Err }

// IsTransient reports whether err (or RateLimited) should be retried
// internally with bounded backoff, per spec §7 "Data errors" propagation
// policy.
func IsTransient(err error) bool {
	var t *TransientError
	var r *RateLimited
	return errors.As(err, &t) || errors.As(err, &r)
}

// QuoteUpdate is one tick from the broker's streaming quote feed (spec §6
// subscribe_quotes contract).
type QuoteUpdate struct {
	InstrumentKey string
	LastPrice     float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	SourceAt      time.Time
}

// QuoteStream is a live subscription handle; Updates delivers ticks until
// the stream is closed or its context is cancelled (spec §6
// subscribe_quotes "yields (instrument_key, ltp, ohlc, volume, source_ts)").
type QuoteStream interface {
	Updates() <-chan QuoteUpdate
	Close() error
}

// OrderPatch carries the mutable fields of modify_order (spec §6
// modify_order(broker_order_id, patch)).
type OrderPatch struct {
	Quantity    *float64
	LimitPrice  *float64
	StopTrigger *float64
}

// Adapter is the inbound dependency the core consumes from the broker
// (spec §6 "External interfaces", "Broker adapter (inbound dependency)").
// Every method is expected to accept a cancellable context (spec §5
// "Every cross-component call has a deadline") and to return one of the
// typed errors above.
type Adapter interface {
	// GetHistoricalOHLCV must be idempotent and may retry internally with
	// bounded backoff (spec §6).
	GetHistoricalOHLCV(ctx context.Context, symbol string, start, end time.Time, barSize string) (domain.Series, error)

	// SubscribeQuotes opens a long-lived streaming subscription for the
	// given instrument keys.
	SubscribeQuotes(ctx context.Context, instrumentKeys []string) (QuoteStream, error)

	// PlaceOrder forwards an order to the broker and returns its
	// broker-assigned identifier.
	PlaceOrder(ctx context.Context, order domain.Order) (brokerOrderID string, err error)

	// CancelOrder cancels a previously placed order.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// ModifyOrder applies patch to a previously placed order.
	ModifyOrder(ctx context.Context, brokerOrderID string, patch OrderPatch) error
}
