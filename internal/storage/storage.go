// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Query bounds a recent-events lookup by count and recency.
type Query struct {
	Limit int
	// Since excludes events with an earlier timestamp. Zero means no bound.
	Since time.Time
}

// Normalize clamps the limit into [1, MaxLimit].
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

// EventStore keeps a bounded history of decoded events. Saving an event
// already stored is a no-op. Recent* return newest first.
type EventStore interface {
	SaveToken(ctx context.Context, t domain.NewToken) error
	SaveTrade(ctx context.Context, t domain.Trade) error

	RecentTokens(ctx context.Context, q Query) ([]domain.NewToken, error)
	// RecentTrades returns trades of mint, or of all mints when mint is empty.
	RecentTrades(ctx context.Context, mint string, q Query) ([]domain.Trade, error)

	// Prune deletes events older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Validate checks the identity fields of an event.
func Validate(e domain.Event) error {
	m := e.Meta()
	if m.Mint == "" || m.Signature == "" {
		return ErrInvalidInput
	}
	return nil
}
