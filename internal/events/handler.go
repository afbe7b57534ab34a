// internal/events/handler.go
package events

import (
	"context"
)

// Handler processes values published on a Registry.
type Handler[T any] interface {
	// Handle processes a value. Should not block.
	Handle(ctx context.Context, v T) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as handlers.
type HandlerFunc[T any] func(ctx context.Context, v T) error

// Handle calls f(ctx, v).
func (f HandlerFunc[T]) Handle(ctx context.Context, v T) error {
	return f(ctx, v)
}

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()
