// internal/domain/price.go
package domain

import "time"

// PriceSample is a point-in-time observation for one mint. It is passed by
// value and never stored by the engines.
type PriceSample struct {
	Mint       string
	Price      float64
	Volume     *float64
	MarketCap  *float64
	ObservedAt time.Time
	Source     string
}

// Float returns a pointer to v. Handy for the optional sample fields.
func Float(v float64) *float64 {
	return &v
}
