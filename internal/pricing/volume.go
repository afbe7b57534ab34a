// internal/pricing/volume.go
package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
)

type volumePoint struct {
	at    time.Time
	quote float64
}

// VolumeTracker keeps a rolling window of traded quote volume (SOL) per mint,
// fed by decoded trades.
type VolumeTracker struct {
	mu     sync.Mutex
	window time.Duration
	points map[string][]volumePoint
	now    func() time.Time
}

// NewVolumeTracker creates a tracker summing trades over window.
func NewVolumeTracker(window time.Duration, now func() time.Time) *VolumeTracker {
	if now == nil {
		now = time.Now
	}
	return &VolumeTracker{
		window: window,
		points: make(map[string][]volumePoint),
		now:    now,
	}
}

// Record adds a trade to its mint's window.
func (v *VolumeTracker) Record(t domain.Trade) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pts := append(v.points[t.Mint], volumePoint{at: t.Timestamp, quote: t.QuoteAmount})
	v.points[t.Mint] = v.trim(pts, v.now())
}

// HandleTrade makes the tracker usable as a trade subscriber.
func (v *VolumeTracker) HandleTrade(_ context.Context, t domain.Trade) error {
	v.Record(t)
	return nil
}

// Volume returns the quote volume traded within the window.
func (v *VolumeTracker) Volume(mint string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	pts := v.trim(v.points[mint], v.now())
	if len(pts) == 0 {
		delete(v.points, mint)
		return 0
	}
	v.points[mint] = pts

	var sum float64
	for _, p := range pts {
		sum += p.quote
	}
	return sum
}

// Prune drops expired points for every mint and forgets idle mints.
func (v *VolumeTracker) Prune() {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	for mint, pts := range v.points {
		pts = v.trim(pts, now)
		if len(pts) == 0 {
			delete(v.points, mint)
			continue
		}
		v.points[mint] = pts
	}
}

// Mints returns the number of mints with volume in the window.
func (v *VolumeTracker) Mints() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.points)
}

// trim drops points older than the window. Points arrive roughly in time order.
func (v *VolumeTracker) trim(pts []volumePoint, now time.Time) []volumePoint {
	cutoff := now.Add(-v.window)
	i := 0
	for i < len(pts) && pts[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return pts
	}
	return append(pts[:0:0], pts[i:]...)
}
