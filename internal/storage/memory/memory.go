// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
)

// ring is a fixed-capacity buffer overwriting its oldest entry.
type ring[T any] struct {
	buf  []T
	next int
	size int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

// push appends v and returns the entry it overwrote, if any.
func (r *ring[T]) push(v T) (T, bool) {
	old, evicted := r.buf[r.next], r.size == len(r.buf)
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if !evicted {
		r.size++
	}
	return old, evicted
}

// each visits entries newest first until fn returns false.
func (r *ring[T]) each(fn func(T) bool) {
	for i := 1; i <= r.size; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		if !fn(r.buf[idx]) {
			return
		}
	}
}

// retain keeps the entries for which keep returns true, preserving order,
// and returns how many were dropped.
func (r *ring[T]) retain(keep func(T) bool) int {
	kept := make([]T, 0, r.size)
	r.each(func(v T) bool {
		if keep(v) {
			kept = append(kept, v)
		}
		return true
	})
	dropped := r.size - len(kept)

	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.next, r.size = 0, 0
	for i := len(kept) - 1; i >= 0; i-- {
		r.push(kept[i])
	}
	return dropped
}

// Store is an in-memory EventStore bounded by capacity per event kind.
type Store struct {
	mu        sync.RWMutex
	tokens    *ring[domain.NewToken]
	trades    *ring[domain.Trade]
	tokenKeys map[string]struct{}
	tradeKeys map[string]struct{}
}

var _ storage.EventStore = (*Store)(nil)

// New creates a store keeping at most tokenCap tokens and tradeCap trades.
func New(tokenCap, tradeCap int) *Store {
	if tokenCap <= 0 {
		tokenCap = 10_000
	}
	if tradeCap <= 0 {
		tradeCap = 100_000
	}
	return &Store{
		tokens:    newRing[domain.NewToken](tokenCap),
		trades:    newRing[domain.Trade](tradeCap),
		tokenKeys: make(map[string]struct{}),
		tradeKeys: make(map[string]struct{}),
	}
}

func (s *Store) SaveToken(_ context.Context, t domain.NewToken) error {
	if err := storage.Validate(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokenKeys[t.Mint]; ok {
		return nil
	}
	if old, evicted := s.tokens.push(t); evicted {
		delete(s.tokenKeys, old.Mint)
	}
	s.tokenKeys[t.Mint] = struct{}{}
	return nil
}

func (s *Store) SaveTrade(_ context.Context, t domain.Trade) error {
	if err := storage.Validate(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tradeKeys[t.Signature]; ok {
		return nil
	}
	if old, evicted := s.trades.push(t); evicted {
		delete(s.tradeKeys, old.Signature)
	}
	s.tradeKeys[t.Signature] = struct{}{}
	return nil
}

func (s *Store) RecentTokens(_ context.Context, q storage.Query) ([]domain.NewToken, error) {
	q = q.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.NewToken, 0, min(q.Limit, s.tokens.size))
	s.tokens.each(func(t domain.NewToken) bool {
		if !q.Since.IsZero() && t.Timestamp.Before(q.Since) {
			return true
		}
		out = append(out, t)
		return len(out) < q.Limit
	})
	return out, nil
}

func (s *Store) RecentTrades(_ context.Context, mint string, q storage.Query) ([]domain.Trade, error) {
	q = q.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Trade, 0)
	s.trades.each(func(t domain.Trade) bool {
		if mint != "" && t.Mint != mint {
			return true
		}
		if !q.Since.IsZero() && t.Timestamp.Before(q.Since) {
			return true
		}
		out = append(out, t)
		return len(out) < q.Limit
	})
	return out, nil
}

func (s *Store) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.tokens.retain(func(t domain.NewToken) bool {
		if t.Timestamp.Before(before) {
			delete(s.tokenKeys, t.Mint)
			return false
		}
		return true
	})
	n += s.trades.retain(func(t domain.Trade) bool {
		if t.Timestamp.Before(before) {
			delete(s.tradeKeys, t.Signature)
			return false
		}
		return true
	})
	return int64(n), nil
}

func (s *Store) Close() error { return nil }
