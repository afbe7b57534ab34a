// internal/orders/order.go
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest = errors.New("invalid order request")
	ErrNotFound       = errors.New("order not found")
	ErrNotCancellable = errors.New("order is not cancellable")
)

// Kind of conditional order.
type Kind string

const (
	KindStopLoss     Kind = "stop_loss"
	KindTakeProfit   Kind = "take_profit"
	KindTrailingStop Kind = "trailing_stop"
)

// Status of an order. Cancelled, executed and failed are terminal; a
// triggered order only moves on to executed or failed.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCancelled Status = "cancelled"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExecuted || s == StatusFailed
}

// Order is a conditional sell of a position.
type Order struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	PositionID string `json:"position_id,omitempty"`
	Mint       string `json:"mint"`
	WalletRef  string `json:"wallet_ref"`
	Kind       Kind   `json:"kind"`

	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Amount       decimal.Decimal `json:"amount"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	TriggeredAt    *time.Time       `json:"triggered_at,omitempty"`
	TriggeredPrice *decimal.Decimal `json:"triggered_price,omitempty"`
	ExecutionRef   string           `json:"execution_ref,omitempty"`
	Error          string           `json:"error,omitempty"`

	// Trailing stop only.
	TrailingPercent  decimal.Decimal `json:"trailing_percent,omitempty"`
	HighestPriceSeen decimal.Decimal `json:"highest_price_seen,omitempty"`
	CurrentStopPrice decimal.Decimal `json:"current_stop_price,omitempty"`
}

func (o *Order) clone() Order {
	c := *o
	if o.TriggeredAt != nil {
		t := *o.TriggeredAt
		c.TriggeredAt = &t
	}
	if o.TriggeredPrice != nil {
		p := *o.TriggeredPrice
		c.TriggeredPrice = &p
	}
	return c
}

// shouldTrigger evaluates the order condition at price.
func (o *Order) shouldTrigger(price decimal.Decimal) bool {
	switch o.Kind {
	case KindStopLoss:
		return price.LessThanOrEqual(o.TriggerPrice)
	case KindTakeProfit:
		return price.GreaterThanOrEqual(o.TriggerPrice)
	case KindTrailingStop:
		return price.LessThanOrEqual(o.CurrentStopPrice)
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// observePeak raises the trailing peak and stop. It reports whether they moved.
func (o *Order) observePeak(price decimal.Decimal) bool {
	if o.Kind != KindTrailingStop || !price.GreaterThan(o.HighestPriceSeen) {
		return false
	}
	o.HighestPriceSeen = price
	stop := trailingStop(price, o.TrailingPercent)
	if stop.GreaterThan(o.CurrentStopPrice) {
		o.CurrentStopPrice = stop
		o.TriggerPrice = stop
	}
	return true
}

func trailingStop(peak, pct decimal.Decimal) decimal.Decimal {
	return peak.Mul(decimal.NewFromInt(1).Sub(pct.Div(hundred)))
}

// CreateRequest describes a stop-loss or take-profit order.
type CreateRequest struct {
	UserID       string
	PositionID   string
	Mint         string
	WalletRef    string
	TriggerPrice decimal.Decimal
	Amount       decimal.Decimal
}

func (r CreateRequest) validate() error {
	if err := validateOwner(r.UserID, r.Mint, r.WalletRef); err != nil {
		return err
	}
	if !r.TriggerPrice.IsPositive() {
		return fmt.Errorf("%w: trigger price must be positive", ErrInvalidRequest)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// TrailingRequest describes a trailing stop. ReferencePrice seeds the peak.
type TrailingRequest struct {
	UserID          string
	PositionID      string
	Mint            string
	WalletRef       string
	TrailingPercent decimal.Decimal
	Amount          decimal.Decimal
	ReferencePrice  decimal.Decimal
}

func (r TrailingRequest) validate() error {
	if err := validateOwner(r.UserID, r.Mint, r.WalletRef); err != nil {
		return err
	}
	if !r.TrailingPercent.IsPositive() || r.TrailingPercent.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: trailing percent must be in (0, 100)", ErrInvalidRequest)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !r.ReferencePrice.IsPositive() {
		return fmt.Errorf("%w: reference price must be positive", ErrInvalidRequest)
	}
	return nil
}

func validateOwner(userID, mint, walletRef string) error {
	switch {
	case userID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case mint == "":
		return fmt.Errorf("%w: mint is required", ErrInvalidRequest)
	case walletRef == "":
		return fmt.Errorf("%w: wallet ref is required", ErrInvalidRequest)
	}
	return nil
}

// Filter selects orders in List. Empty fields match everything.
type Filter struct {
	UserID     string
	PositionID string
	Mint       string
	Kind       Kind
	Status     Status
}

func (f Filter) match(o *Order) bool {
	return (f.UserID == "" || o.UserID == f.UserID) &&
		(f.PositionID == "" || o.PositionID == f.PositionID) &&
		(f.Mint == "" || o.Mint == f.Mint) &&
		(f.Kind == "" || o.Kind == f.Kind) &&
		(f.Status == "" || o.Status == f.Status)
}

// ExecutionRequest is handed to the execution collaborator when an order
// triggers. Orders always sell Amount of the position's token.
type ExecutionRequest struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	PositionID    string          `json:"position_id,omitempty"`
	Mint          string          `json:"mint"`
	WalletRef     string          `json:"wallet_ref"`
	Kind          Kind            `json:"kind"`
	Side          string          `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"`
	ObservedPrice decimal.Decimal `json:"observed_price"`
	TriggeredAt   time.Time       `json:"triggered_at"`
}

// ExecutionResult is the collaborator's answer.
type ExecutionResult struct {
	Success      bool   `json:"success"`
	ExecutionRef string `json:"execution_ref,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Executor performs the swap for a triggered order.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}
