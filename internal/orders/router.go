// Package orders implements the order router (spec §4.5, component C5):
// mode state (paper/live), order validation and dispatch, the paper-mode
// fill simulator and the virtual/live holdings book.
package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/broker"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/marketdata"
)

// Limits carries the order router's risk caps (spec §6 config
// `max_order_quantity`, `max_position_value`, `paper_slippage_bps`).
type Limits struct {
	PaperSlippageBps float64
	MaxOrderQuantity float64
	MaxPositionValue float64
}

// SymbolValidator reports whether symbol is tradable, the seam for
// whatever instrument master the hosting process wires in (spec §7
// InvalidSymbol is an input error with no state mutation).
type SymbolValidator interface {
	Known(symbol string) bool
}

// AllSymbolsKnown is a permissive SymbolValidator for tests and setups
// without an instrument master.
type AllSymbolsKnown struct{}

// Known always returns true.
func (AllSymbolsKnown) Known(string) bool { return true }

// Router owns the mode switch, holdings book and order dispatch. It is one
// of the two explicitly-initialised process-wide handles the spec allows
// (spec §5 "No component owns a global mutable singleton except the
// registry and the order router").
type Router struct {
	mu sync.RWMutex

	mode   domain.Mode
	cash   float64
	holdings map[string]domain.Holding

	pendingConfirmation string // non-empty while a paper->live switch awaits its token
	confirmedTokens     map[string]bool

	orders         map[string]domain.Order // order_id -> order
	idempotency    map[string]string       // idempotency_key -> order_id

	adapter   broker.Adapter
	cache     *marketdata.Cache
	validator SymbolValidator
	limits    Limits
	log       zerolog.Logger
}

// New constructs a Router starting in paper mode with startingCash, per
// spec §4.5 "Owns mode state (paper or live), initialised to paper."
func New(startingCash float64, adapter broker.Adapter, cache *marketdata.Cache, validator SymbolValidator, limits Limits, log zerolog.Logger) *Router {
	if validator == nil {
		validator = AllSymbolsKnown{}
	}
	return &Router{
		mode:            domain.ModePaper,
		cash:            startingCash,
		holdings:        make(map[string]domain.Holding),
		confirmedTokens: make(map[string]bool),
		orders:          make(map[string]domain.Order),
		idempotency:     make(map[string]string),
		adapter:         adapter,
		cache:           cache,
		validator:       validator,
		limits:          limits,
		log:             log.With().Str("component", "order_router").Logger(),
	}
}

// Mode returns the router's current mode.
func (r *Router) Mode() domain.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// RequestModeChange attempts to switch to mode. Switching away from paper
// requires a confirmation token from a prior call (spec §3 "live-mode
// orders require an explicit per-session confirmation token"; spec §8
// property 5 "a prior ConfirmationRequired response exists in the same
// session"). Calling with mode already equal to the current mode is a
// no-op success. confirmation is ignored on transitions that don't
// require it.
func (r *Router) RequestModeChange(mode domain.Mode, confirmation string) (domain.Mode, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mode == r.mode {
		return r.mode, "", nil
	}

	if mode != domain.ModeLive {
		// live -> paper never needs confirmation: falling back to
		// simulated trading is always safe.
		r.mode = mode
		r.pendingConfirmation = ""
		return r.mode, "", nil
	}

	if confirmation == "" || !r.confirmedTokens[confirmation] {
		token := uuid.NewString()
		r.pendingConfirmation = token
		r.confirmedTokens[token] = true
		return r.mode, token, apperr.New(apperr.ConfirmationRequired, "orders.RequestModeChange", nil)
	}

	r.mode = domain.ModeLive
	r.pendingConfirmation = ""
	return r.mode, "", nil
}

// Holdings returns a read-only snapshot of the virtual/live holdings book
// (spec §5 "Holdings book is mutated only by the order router; all other
// consumers read a snapshot").
func (r *Router) Holdings() []domain.Holding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Holding, 0, len(r.holdings))
	for _, h := range r.holdings {
		out = append(out, h)
	}
	return out
}

// Cash returns the current virtual/live cash balance.
func (r *Router) Cash() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cash
}

// Get returns a previously submitted order by ID.
func (r *Router) Get(orderID string) (domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[orderID]
	return o, ok
}

// SubmitOrder validates and dispatches order (spec §4.5 "Order router").
// Replaying the same idempotencyKey returns the original order rather than
// creating a second one (spec §8 "replaying the same order payload with
// the same client-supplied idempotency key must produce at most one
// order").
func (r *Router) SubmitOrder(ctx context.Context, order domain.Order, idempotencyKey string) (domain.Order, error) {
	if idempotencyKey != "" {
		r.mu.RLock()
		if existingID, ok := r.idempotency[idempotencyKey]; ok {
			existing := r.orders[existingID]
			r.mu.RUnlock()
			return existing, nil
		}
		r.mu.RUnlock()
	}

	if err := r.validate(order); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order.OrderID = uuid.NewString()
	order.IdempotencyKey = idempotencyKey
	order.CreatedAt = now
	order.UpdatedAt = now
	order.State = domain.OrderAccepted

	r.mu.Lock()
	order.Mode = r.mode
	mode := r.mode
	r.mu.Unlock()

	var err error
	switch mode {
	case domain.ModePaper:
		order, err = r.fillPaper(order, now)
	case domain.ModeLive:
		order, err = r.dispatchLive(ctx, order, now)
	}
	if err != nil {
		order.State = domain.OrderRejected
		order.RejectReason = err.Error()
	}

	r.mu.Lock()
	r.orders[order.OrderID] = order
	if idempotencyKey != "" {
		r.idempotency[idempotencyKey] = order.OrderID
	}
	r.mu.Unlock()

	return order, err
}

func (r *Router) validate(order domain.Order) error {
	if !r.validator.Known(order.Symbol) {
		return apperr.New(apperr.InvalidSymbol, "orders.SubmitOrder", nil).WithSymbol(order.Symbol)
	}
	if order.Quantity <= 0 {
		return apperr.New(apperr.InvalidOrder, "orders.SubmitOrder", fmt.Errorf("quantity must be positive")).WithSymbol(order.Symbol)
	}
	if order.Quantity > r.limits.MaxOrderQuantity {
		return apperr.New(apperr.InvalidOrder, "orders.SubmitOrder", fmt.Errorf("quantity %v exceeds max_order_quantity %v", order.Quantity, r.limits.MaxOrderQuantity)).WithSymbol(order.Symbol)
	}
	switch order.OrderType {
	case domain.OrderLimit:
		if order.LimitPrice == nil || *order.LimitPrice <= 0 {
			return apperr.New(apperr.InvalidOrder, "orders.SubmitOrder", fmt.Errorf("limit order requires a positive limit_price")).WithSymbol(order.Symbol)
		}
	case domain.OrderStop, domain.OrderStopMarket:
		if order.StopTrigger == nil || *order.StopTrigger <= 0 {
			return apperr.New(apperr.InvalidOrder, "orders.SubmitOrder", fmt.Errorf("stop order requires a positive stop_trigger")).WithSymbol(order.Symbol)
		}
	case domain.OrderMarket:
		// no price fields required
	default:
		return apperr.New(apperr.InvalidOrder, "orders.SubmitOrder", fmt.Errorf("unknown order_type %q", order.OrderType)).WithSymbol(order.Symbol)
	}
	return nil
}

// fillPaper simulates an immediate fill for market orders (last trade
// price plus configurable slippage) or a conditional fill for limit
// orders (only once last trade price crosses the limit), per spec §4.5
// "Paper mode". A failure here must not mutate holdings (spec §4.5 "any
// failure of validation or adapter leaves the order in rejected and does
// not mutate holdings").
func (r *Router) fillPaper(order domain.Order, now time.Time) (domain.Order, error) {
	r.mu.RLock()
	cache := r.cache
	r.mu.RUnlock()

	entry, ok := cache.PeekNoFetch(order.Symbol)
	if !ok {
		return order, fmt.Errorf("no cached quote for %s", order.Symbol)
	}
	last := entry.LastTradePrice

	fillPrice, filled := r.simulatedFillPrice(order, last)
	if !filled {
		order.State = domain.OrderWorking
		return order, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	notional := fillPrice * order.Quantity
	if order.Side == domain.SideBuy {
		if notional > r.limits.MaxPositionValue {
			return order, fmt.Errorf("order notional %v exceeds max_position_value %v", notional, r.limits.MaxPositionValue)
		}
		r.cash -= notional
	} else {
		r.cash += notional
	}

	r.applyFill(order.Symbol, order.Side, order.Quantity, fillPrice, last)

	order.Fills = append(order.Fills, domain.Fill{Quantity: order.Quantity, Price: fillPrice, FilledAt: now})
	order.State = domain.OrderFilled
	order.UpdatedAt = now
	return order, nil
}

// simulatedFillPrice applies slippage to a market order, or checks the
// crossing condition for a limit order.
func (r *Router) simulatedFillPrice(order domain.Order, last float64) (price float64, filled bool) {
	switch order.OrderType {
	case domain.OrderMarket, domain.OrderStopMarket:
		slip := last * r.limits.PaperSlippageBps / 10000
		if order.Side == domain.SideBuy {
			return last + slip, true
		}
		return last - slip, true
	case domain.OrderLimit:
		limit := *order.LimitPrice
		if order.Side == domain.SideBuy && last <= limit {
			return last, true
		}
		if order.Side == domain.SideSell && last >= limit {
			return last, true
		}
		return 0, false
	default:
		return last, true
	}
}

// applyFill updates the virtual holdings book for a single fill. Caller
// must hold mu.
func (r *Router) applyFill(symbol string, side domain.Side, qty, price, lastPrice float64) {
	h := r.holdings[symbol]
	h.Symbol = symbol

	signedQty := qty
	if side == domain.SideSell {
		signedQty = -qty
	}

	newQty := h.Quantity + signedQty
	switch {
	case side == domain.SideBuy && h.Quantity >= 0:
		// adding to (or opening) a long position: roll the average price
		totalCost := h.AvgPrice*h.Quantity + price*qty
		if newQty != 0 {
			h.AvgPrice = totalCost / newQty
		}
	case side == domain.SideSell && h.Quantity <= 0:
		totalCost := h.AvgPrice*(-h.Quantity) + price*qty
		if newQty != 0 {
			h.AvgPrice = totalCost / (-newQty)
		}
	default:
		// crossing through zero or reducing an existing position: keep the
		// existing average price basis.
	}

	h.Quantity = newQty
	h.LastPrice = lastPrice
	h.UnrealisedPnL = (lastPrice - h.AvgPrice) * h.Quantity

	if h.Quantity == 0 {
		delete(r.holdings, symbol)
		return
	}
	r.holdings[symbol] = h
}

// dispatchLive forwards order to the broker adapter and relays its ack
// back onto the order record (spec §4.5 "Live mode").
func (r *Router) dispatchLive(ctx context.Context, order domain.Order, now time.Time) (domain.Order, error) {
	brokerOrderID, err := r.adapter.PlaceOrder(ctx, order)
	if err != nil {
		return order, err
	}
	order.BrokerOrderID = brokerOrderID
	order.State = domain.OrderWorking
	order.UpdatedAt = now
	return order, nil
}
