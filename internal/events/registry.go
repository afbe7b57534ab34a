// internal/events/registry.go
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is a typed in-memory publish/subscribe registry. Handlers run
// synchronously in registration order. The handler list is copy-on-write, so
// subscribing or unsubscribing from inside a handler is safe.
type Registry[T any] struct {
	mu       sync.Mutex
	handlers []*entry[T]
	logger   *zap.Logger
	failures atomic.Uint64
}

type entry[T any] struct {
	id      string
	handler Handler[T]
	active  atomic.Bool
}

// NewRegistry creates an empty registry. name is used for the logger.
func NewRegistry[T any](name string, logger *zap.Logger) *Registry[T] {
	return &Registry[T]{
		logger: logger.Named(name),
	}
}

// Subscribe registers a handler and returns the function that removes it.
func (r *Registry[T]) Subscribe(handler Handler[T]) Unsubscribe {
	e := &entry[T]{
		id:      uuid.New().String(),
		handler: handler,
	}
	e.active.Store(true)

	r.mu.Lock()
	next := make([]*entry[T], len(r.handlers), len(r.handlers)+1)
	copy(next, r.handlers)
	r.handlers = append(next, e)
	r.mu.Unlock()

	r.logger.Debug("Handler subscribed", zap.String("subscription_id", e.id))

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(e) })
	}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (r *Registry[T]) SubscribeFunc(fn func(context.Context, T) error) Unsubscribe {
	return r.Subscribe(HandlerFunc[T](fn))
}

// SubscribeChan delivers published values on a buffered channel. When the
// buffer is full the value is dropped for this subscriber only. The channel is
// closed by the returned Unsubscribe.
func (r *Registry[T]) SubscribeChan(buffer int) (<-chan T, Unsubscribe) {
	cs := &chanSub[T]{ch: make(chan T, buffer)}
	unsub := r.SubscribeFunc(func(_ context.Context, v T) error {
		if !cs.send(v) {
			return fmt.Errorf("subscriber buffer full, value dropped")
		}
		return nil
	})
	return cs.ch, func() {
		unsub()
		cs.close()
	}
}

// Publish invokes every handler registered at the time of the call. A handler
// that returns an error or panics is logged and skipped; the rest still run.
// It returns the number of handlers that failed.
func (r *Registry[T]) Publish(ctx context.Context, v T) int {
	r.mu.Lock()
	snapshot := r.handlers
	r.mu.Unlock()

	failed := 0
	for _, e := range snapshot {
		if !e.active.Load() {
			continue
		}
		if err := r.invoke(ctx, e, v); err != nil {
			failed++
			r.failures.Add(1)
			r.logger.Error("Handler error",
				zap.String("subscription_id", e.id),
				zap.Error(err))
		}
	}
	return failed
}

// Len returns the number of active subscriptions.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Failures returns the total number of failed handler invocations.
func (r *Registry[T]) Failures() uint64 {
	return r.failures.Load()
}

func (r *Registry[T]) invoke(ctx context.Context, e *entry[T], v T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return e.handler.Handle(ctx, v)
}

func (r *Registry[T]) remove(e *entry[T]) {
	e.active.Store(false)

	r.mu.Lock()
	next := make([]*entry[T], 0, len(r.handlers))
	for _, h := range r.handlers {
		if h != e {
			next = append(next, h)
		}
	}
	r.handlers = next
	r.mu.Unlock()

	r.logger.Debug("Handler unsubscribed", zap.String("subscription_id", e.id))
}

type chanSub[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

func (c *chanSub[T]) send(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

func (c *chanSub[T]) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
