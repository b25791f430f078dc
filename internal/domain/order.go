package domain

import "time"

// Mode is the order router's paper/live switch (§3 invariants: paper orders
// never touch the live adapter).
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects how an order is priced and triggered.
type OrderType string

const (
	OrderMarket     OrderType = "market"
	OrderLimit      OrderType = "limit"
	OrderStop       OrderType = "stop"
	OrderStopMarket OrderType = "stop_market"
)

// OrderState is the lifecycle of one order.
type OrderState string

const (
	OrderAccepted        OrderState = "accepted"
	OrderWorking         OrderState = "working"
	OrderFilled          OrderState = "filled"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderCancelled       OrderState = "cancelled"
	OrderRejected        OrderState = "rejected"
)

// Fill is a single execution against an order.
type Fill struct {
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	FilledAt time.Time `json:"filled_at"`
}

// Order is the order router's unit of work.
type Order struct {
	OrderID        string     `json:"order_id"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	Mode           Mode       `json:"mode"`
	Symbol         string     `json:"symbol"`
	Side           Side       `json:"side"`
	OrderType      OrderType  `json:"order_type"`
	Quantity       float64    `json:"quantity"`
	LimitPrice     *float64   `json:"limit_price,omitempty"`
	StopTrigger    *float64   `json:"stop_trigger,omitempty"`
	State          OrderState `json:"state"`
	RejectReason   string     `json:"reject_reason,omitempty"`
	Fills          []Fill     `json:"fills"`
	BrokerOrderID  string     `json:"broker_order_id,omitempty"`
	CreatedAt      time.Time  `json:"created_ts"`
	UpdatedAt      time.Time  `json:"updated_ts"`
}

// FilledQuantity sums the order's fills.
func (o Order) FilledQuantity() float64 {
	var q float64
	for _, f := range o.Fills {
		q += f.Quantity
	}
	return q
}

// AvgFillPrice returns the quantity-weighted average fill price, or 0 if
// unfilled.
func (o Order) AvgFillPrice() float64 {
	var qty, notional float64
	for _, f := range o.Fills {
		qty += f.Quantity
		notional += f.Quantity * f.Price
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// Holding is one position in a holdings book (paper or live).
type Holding struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	LastPrice     float64 `json:"last_price"`
	UnrealisedPnL float64 `json:"unrealised_pnl"`
}

// PortfolioSnapshot is a timestamped record of portfolio composition.
type PortfolioSnapshot struct {
	SnapshotAt time.Time `json:"snapshot_ts"`
	Cash       float64   `json:"cash"`
	TotalValue float64   `json:"total_value"`
	Holdings   []Holding `json:"holdings"`
}

// MarketCacheEntry is the market-data cache's unit of storage.
type MarketCacheEntry struct {
	InstrumentKey   string    `json:"instrument_key"`
	LastTradePrice  float64   `json:"last_trade_price"`
	Open            float64   `json:"open"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	Close           float64   `json:"close"`
	Volume          float64   `json:"volume"`
	ReceivedAt      time.Time `json:"received_ts"`
	SourceAt        time.Time `json:"source_ts"`
	TTLDeadline     time.Time `json:"ttl_deadline"`
}

// Expired reports whether the entry is stale as of now.
func (e MarketCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.TTLDeadline)
}
