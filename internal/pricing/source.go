// internal/pricing/source.go
package pricing

import (
	"context"
	"errors"
	"fmt"
)

// ErrCurveComplete is returned for tokens whose bonding curve has migrated.
var ErrCurveComplete = errors.New("pricing: bonding curve complete")

// Quote is the result of a single price fetch. Volume and MarketCap are
// optional; nil means the source does not know them.
type Quote struct {
	Price     float64
	Volume    *float64
	MarketCap *float64
}

// Source fetches the current price of a mint.
type Source interface {
	FetchPrice(ctx context.Context, mint string) (Quote, error)
	Name() string
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, mint string) (Quote, error)

func (f SourceFunc) FetchPrice(ctx context.Context, mint string) (Quote, error) {
	return f(ctx, mint)
}

func (f SourceFunc) Name() string { return "func" }

type fallback struct {
	primary, secondary Source
}

// Fallback queries primary and, when it fails, secondary.
func Fallback(primary, secondary Source) Source {
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) FetchPrice(ctx context.Context, mint string) (Quote, error) {
	q, err := f.primary.FetchPrice(ctx, mint)
	if err == nil {
		return q, nil
	}
	q2, err2 := f.secondary.FetchPrice(ctx, mint)
	if err2 != nil {
		return Quote{}, fmt.Errorf("%s: %w; %s: %v", f.primary.Name(), err, f.secondary.Name(), err2)
	}
	return q2, nil
}

func (f *fallback) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

type withVolume struct {
	src     Source
	tracker *VolumeTracker
}

// WithVolume fills Quote.Volume from the tracker when the source leaves it empty.
func WithVolume(src Source, tracker *VolumeTracker) Source {
	return &withVolume{src: src, tracker: tracker}
}

func (w *withVolume) FetchPrice(ctx context.Context, mint string) (Quote, error) {
	q, err := w.src.FetchPrice(ctx, mint)
	if err != nil {
		return q, err
	}
	if q.Volume == nil {
		v := w.tracker.Volume(mint)
		q.Volume = &v
	}
	return q, nil
}

func (w *withVolume) Name() string { return w.src.Name() }
