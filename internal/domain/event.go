// internal/domain/event.go
package domain

import (
	"time"
)

// EventKind identifies the variant of a decoded chain event.
type EventKind int

const (
	KindNewToken EventKind = iota + 1
	KindTrade
)

func (k EventKind) String() string {
	switch k {
	case KindNewToken:
		return "new_token"
	case KindTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Event is the closed set of events produced by the decoder: NewToken or Trade.
// Consumers handle it with a type switch.
type Event interface {
	Kind() EventKind
	Meta() EventMeta
	sealed()
}

// EventMeta holds the fields shared by every chain event.
type EventMeta struct {
	Mint      string    `json:"mint"`
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	Timestamp time.Time `json:"timestamp"`
}

// NewToken is emitted when a token is created on the bonding curve.
type NewToken struct {
	EventMeta
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	URI          string `json:"uri"`
	BondingCurve string `json:"bonding_curve"`
	Creator      string `json:"creator"`
}

func (NewToken) Kind() EventKind   { return KindNewToken }
func (t NewToken) Meta() EventMeta { return t.EventMeta }
func (NewToken) sealed()           {}

// Side is the direction of a trade from the trader's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single swap against a bonding curve.
type Trade struct {
	EventMeta
	Side   Side   `json:"side"`
	Trader string `json:"trader"`
	// Buyer receives the base token, Seller gives it up.
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`

	PriceInQuote float64 `json:"price_in_quote"`
	BaseAmount   float64 `json:"base_amount"`
	QuoteAmount  float64 `json:"quote_amount"`
	BaseRaw      uint64  `json:"base_raw"`
	QuoteRaw     uint64  `json:"quote_raw"`

	VirtualSolReserves   uint64 `json:"virtual_sol_reserves"`
	VirtualTokenReserves uint64 `json:"virtual_token_reserves"`
}

func (Trade) Kind() EventKind   { return KindTrade }
func (t Trade) Meta() EventMeta { return t.EventMeta }
func (Trade) sealed()           {}
