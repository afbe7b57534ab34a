// internal/tui/throttler.go
package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// PriceThrottler limits price updates to one per mint per interval. The newest
// update inside an interval is kept pending and sent by Flush.
type PriceThrottler struct {
	mu       sync.Mutex
	interval time.Duration
	send     func(tea.Msg) bool
	now      func() time.Time

	lastSent map[string]time.Time
	pending  map[string]PriceMsg

	sentUpdates      uint64
	throttledUpdates uint64
}

// NewPriceThrottler creates a throttler delivering through send.
func NewPriceThrottler(interval time.Duration, send func(tea.Msg) bool, now func() time.Time) *PriceThrottler {
	if interval <= 0 {
		interval = 150 * time.Millisecond
	}
	return &PriceThrottler{
		interval: interval,
		send:     send,
		now:      now,
		lastSent: make(map[string]time.Time),
		pending:  make(map[string]PriceMsg),
	}
}

// Offer sends u now if its mint is due, otherwise it replaces the pending
// update of the mint.
func (pt *PriceThrottler) Offer(u PriceMsg) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := pt.now()
	if now.Sub(pt.lastSent[u.Mint]) < pt.interval {
		pt.pending[u.Mint] = u
		pt.throttledUpdates++
		return
	}
	pt.deliver(u, now)
}

// Flush sends every pending update whose mint is due.
func (pt *PriceThrottler) Flush() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := pt.now()
	for mint, u := range pt.pending {
		if now.Sub(pt.lastSent[mint]) >= pt.interval {
			pt.deliver(u, now)
		}
	}
}

// deliver must be called with pt.mu held. A rejected update stays pending.
func (pt *PriceThrottler) deliver(u PriceMsg, now time.Time) {
	if !pt.send(u) {
		pt.pending[u.Mint] = u
		return
	}
	delete(pt.pending, u.Mint)
	pt.lastSent[u.Mint] = now
	pt.sentUpdates++
}

// Stats returns sent and throttled update counts.
func (pt *PriceThrottler) Stats() (sent, throttled uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.sentUpdates, pt.throttledUpdates
}

// Pending returns the number of mints with a held back update.
func (pt *PriceThrottler) Pending() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.pending)
}
