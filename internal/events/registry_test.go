// internal/events/registry_test.go
package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistryPublishOrder(t *testing.T) {
	r := NewRegistry[int]("test", zaptest.NewLogger(t))

	var got []string
	r.SubscribeFunc(func(_ context.Context, v int) error {
		got = append(got, "first")
		return nil
	})
	r.SubscribeFunc(func(_ context.Context, v int) error {
		got = append(got, "second")
		return nil
	})
	r.SubscribeFunc(func(_ context.Context, v int) error {
		got = append(got, "third")
		return nil
	})

	failed := r.Publish(context.Background(), 1)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestRegistryIsolatesFailures(t *testing.T) {
	r := NewRegistry[string]("test", zaptest.NewLogger(t))

	var reached bool
	r.SubscribeFunc(func(context.Context, string) error { panic("boom") })
	r.SubscribeFunc(func(context.Context, string) error { return errors.New("bad handler") })
	r.SubscribeFunc(func(context.Context, string) error {
		reached = true
		return nil
	})

	failed := r.Publish(context.Background(), "x")
	assert.Equal(t, 2, failed)
	assert.True(t, reached)
	assert.Equal(t, uint64(2), r.Failures())
}

func TestRegistryUnsubscribeInsideHandler(t *testing.T) {
	r := NewRegistry[int]("test", zaptest.NewLogger(t))

	var calls int
	var unsub Unsubscribe
	unsub = r.SubscribeFunc(func(context.Context, int) error {
		calls++
		unsub()
		return nil
	})

	var other int
	r.SubscribeFunc(func(context.Context, int) error {
		other++
		return nil
	})

	r.Publish(context.Background(), 1)
	r.Publish(context.Background(), 2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
	assert.Equal(t, 1, r.Len())

	// Second call is a no-op.
	unsub()
	assert.Equal(t, 1, r.Len())
}

func TestRegistryUnsubscribeLaterHandlerDuringPublish(t *testing.T) {
	r := NewRegistry[int]("test", zaptest.NewLogger(t))

	var unsubSecond Unsubscribe
	r.SubscribeFunc(func(context.Context, int) error {
		unsubSecond()
		return nil
	})
	var secondCalls int
	unsubSecond = r.SubscribeFunc(func(context.Context, int) error {
		secondCalls++
		return nil
	})

	r.Publish(context.Background(), 1)
	assert.Equal(t, 0, secondCalls)
}

func TestRegistrySubscribeChan(t *testing.T) {
	r := NewRegistry[int]("test", zaptest.NewLogger(t))

	ch, unsub := r.SubscribeChan(2)
	r.Publish(context.Background(), 1)
	r.Publish(context.Background(), 2)
	// Buffer is full, this one is dropped for the channel subscriber.
	failed := r.Publish(context.Background(), 3)
	assert.Equal(t, 1, failed)

	require.Equal(t, 1, <-ch)
	require.Equal(t, 2, <-ch)

	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	// Publishing after close must not panic.
	r.Publish(context.Background(), 4)
}

func TestRegistryConcurrentSubscribePublish(t *testing.T) {
	r := NewRegistry[int]("test", zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := r.SubscribeFunc(func(context.Context, int) error { return nil })
			unsub()
		}()
		go func(v int) {
			defer wg.Done()
			r.Publish(context.Background(), v)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
