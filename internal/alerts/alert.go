// internal/alerts/alert.go
package alerts

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest = errors.New("invalid alert request")
	ErrNotFound       = errors.New("alert not found")
)

// Type is the condition an alert watches.
type Type string

const (
	TypePriceAbove     Type = "price_above"
	TypePriceBelow     Type = "price_below"
	TypeVolumeAbove    Type = "volume_above"
	TypeMarketCapAbove Type = "market_cap_above"
)

func (t Type) valid() bool {
	switch t {
	case TypePriceAbove, TypePriceBelow, TypeVolumeAbove, TypeMarketCapAbove:
		return true
	}
	return false
}

// Status of an alert. Triggered and cancelled are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusCancelled Status = "cancelled"
)

// Alert is a one-shot threshold alert on a mint.
type Alert struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Mint         string     `json:"mint"`
	Type         Type       `json:"type"`
	TargetValue  float64    `json:"target_value"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	TriggeredAt  *time.Time `json:"triggered_at,omitempty"`
	TriggerValue *float64   `json:"trigger_value,omitempty"`
}

// CreateRequest describes a new alert.
type CreateRequest struct {
	UserID      string
	Mint        string
	Type        Type
	TargetValue float64
}

func (r CreateRequest) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case r.Mint == "":
		return fmt.Errorf("%w: mint is required", ErrInvalidRequest)
	case !r.Type.valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, r.Type)
	case r.TargetValue <= 0:
		return fmt.Errorf("%w: target value must be positive", ErrInvalidRequest)
	}
	return nil
}

// Filter selects alerts in List. Empty fields match everything.
type Filter struct {
	UserID string
	Mint   string
	Status Status
}

func (f Filter) match(a *Alert) bool {
	return (f.UserID == "" || a.UserID == f.UserID) &&
		(f.Mint == "" || a.Mint == f.Mint) &&
		(f.Status == "" || a.Status == f.Status)
}

func (a *Alert) clone() Alert {
	c := *a
	if a.TriggeredAt != nil {
		t := *a.TriggeredAt
		c.TriggeredAt = &t
	}
	if a.TriggerValue != nil {
		v := *a.TriggerValue
		c.TriggerValue = &v
	}
	return c
}
