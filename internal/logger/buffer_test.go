// internal/logger/buffer_test.go
package logger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBufferRecentOrder(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Add(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	got := b.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Message)
	assert.Equal(t, "m4", got[2].Message)

	got = b.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].Message)
	assert.Equal(t, uint64(5), b.Total())
}

func TestBufferNotWrapped(t *testing.T) {
	b := NewBuffer(10)
	b.Add(LogEntry{Message: "a"})
	b.Add(LogEntry{Message: "b"})

	got := b.Recent(5)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Message)
}

func TestBufferedLogger(t *testing.T) {
	b := NewBuffer(10)
	l := NewBuffered(Config{}, b).Named("feed")

	l.Info("Subscription live", zap.String("mint", "abc"), zap.Int("attempt", 2))
	l.Debug("hidden")

	got := b.Recent(0)
	require.Len(t, got, 1)
	assert.Equal(t, "Subscription live", got[0].Message)
	assert.Equal(t, "INFO", got[0].Level)
	assert.Equal(t, "feed", got[0].Logger)
	assert.Equal(t, "abc", got[0].Fields["mint"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestBufferPlainText(t *testing.T) {
	b := NewBuffer(2)
	_, err := b.Write([]byte("not json\n"))
	require.NoError(t, err)
	assert.Equal(t, "not json", b.Recent(1)[0].Message)
}

func TestBufferConcurrentAccess(t *testing.T) {
	b := NewBuffer(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Add(LogEntry{Message: fmt.Sprintf("%d-%d", id, j)})
				_ = b.Recent(10)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(1000), b.Total())
	assert.Len(t, b.Recent(0), 100)
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "So11...1112", ShortAddress("So11111111111111111111111111111111111111112"))
	assert.Equal(t, "abc", ShortAddress("abc"))
}
