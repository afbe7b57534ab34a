// internal/alerts/engine.go
package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
)

// Tracker keeps a mint under price observation while referenced.
type Tracker interface {
	Acquire(mint string)
	Release(mint string)
}

// Engine owns all alerts and evaluates them against price samples.
type Engine struct {
	mu       sync.RWMutex
	alerts   map[string]*Alert
	active   map[string]map[string]*Alert // mint -> id -> alert
	lastEval map[string]time.Time

	tracker   Tracker
	triggered *events.Registry[Alert]
	clock     func() time.Time
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewEngine creates an engine. clock defaults to time.Now.
func NewEngine(tracker Tracker, clock func() time.Time, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	logger = logger.Named("alerts")
	return &Engine{
		alerts:    make(map[string]*Alert),
		active:    make(map[string]map[string]*Alert),
		lastEval:  make(map[string]time.Time),
		tracker:   tracker,
		triggered: events.NewRegistry[Alert]("triggered", logger),
		clock:     clock,
		metrics:   m,
		logger:    logger,
	}
}

// Create registers an active alert and starts watching its mint.
func (e *Engine) Create(req CreateRequest) (Alert, error) {
	if err := req.validate(); err != nil {
		return Alert{}, err
	}

	a := &Alert{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Mint:        req.Mint,
		Type:        req.Type,
		TargetValue: req.TargetValue,
		Status:      StatusActive,
		CreatedAt:   e.clock(),
	}

	e.tracker.Acquire(a.Mint)

	e.mu.Lock()
	e.alerts[a.ID] = a
	byMint, ok := e.active[a.Mint]
	if !ok {
		byMint = make(map[string]*Alert)
		e.active[a.Mint] = byMint
	}
	byMint[a.ID] = a
	out := a.clone()
	e.mu.Unlock()

	e.logger.Info("Alert created",
		zap.String("id", a.ID),
		zap.String("mint", a.Mint),
		zap.String("type", string(a.Type)),
		zap.Float64("target", a.TargetValue))
	return out, nil
}

// Cancel moves an active alert to cancelled. It returns false for unknown or
// already terminal alerts.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	a, ok := e.alerts[id]
	if !ok || a.Status != StatusActive {
		e.mu.Unlock()
		return false
	}
	a.Status = StatusCancelled
	e.deactivate(a)
	e.mu.Unlock()

	e.tracker.Release(a.Mint)
	e.logger.Info("Alert cancelled", zap.String("id", id))
	return true
}

// Evaluate checks every active alert on the sample's mint. Alerts whose
// condition holds are triggered exactly once and returned. Samples older than
// the last evaluated one for the mint are ignored.
func (e *Engine) Evaluate(ctx context.Context, s domain.PriceSample) []Alert {
	e.mu.Lock()
	byMint := e.active[s.Mint]
	if len(byMint) == 0 {
		e.mu.Unlock()
		return nil
	}
	if last, ok := e.lastEval[s.Mint]; ok && s.ObservedAt.Before(last) {
		e.mu.Unlock()
		e.metrics.StaleSample("alerts")
		e.logger.Debug("Ignoring stale sample",
			zap.String("mint", s.Mint),
			zap.Time("observed_at", s.ObservedAt),
			zap.Time("last_evaluated", last))
		return nil
	}
	e.lastEval[s.Mint] = s.ObservedAt

	candidates := make([]*Alert, 0, len(byMint))
	for _, a := range byMint {
		candidates = append(candidates, a)
	}
	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	now := e.clock()
	var fired []Alert
	for _, a := range candidates {
		value, ok := satisfied(a, s)
		if !ok {
			continue
		}
		at := now
		a.Status = StatusTriggered
		a.TriggeredAt = &at
		a.TriggerValue = &value
		e.deactivate(a)
		fired = append(fired, a.clone())
	}
	e.mu.Unlock()

	for _, a := range fired {
		e.tracker.Release(a.Mint)
		e.metrics.AlertTriggered(string(a.Type))
		e.logger.Info("Alert triggered",
			zap.String("id", a.ID),
			zap.String("mint", a.Mint),
			zap.String("type", string(a.Type)),
			zap.Float64("target", a.TargetValue),
			zap.Float64("value", *a.TriggerValue))
		e.triggered.Publish(ctx, a)
	}
	return fired
}

// Get returns a copy of an alert.
func (e *Engine) Get(id string) (Alert, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.alerts[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	return a.clone(), nil
}

// List returns copies of matching alerts, oldest first.
func (e *Engine) List(f Filter) []Alert {
	e.mu.RLock()
	matched := make([]*Alert, 0)
	for _, a := range e.alerts {
		if f.match(a) {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	out := make([]Alert, len(matched))
	for i, a := range matched {
		out[i] = a.clone()
	}
	e.mu.RUnlock()
	return out
}

// OnTriggered registers a handler called once per triggered alert.
func (e *Engine) OnTriggered(h events.Handler[Alert]) events.Unsubscribe {
	return e.triggered.Subscribe(h)
}

// deactivate must be called with e.mu held.
func (e *Engine) deactivate(a *Alert) {
	byMint := e.active[a.Mint]
	delete(byMint, a.ID)
	if len(byMint) == 0 {
		delete(e.active, a.Mint)
		delete(e.lastEval, a.Mint)
	}
}

func satisfied(a *Alert, s domain.PriceSample) (float64, bool) {
	switch a.Type {
	case TypePriceAbove:
		return s.Price, s.Price >= a.TargetValue
	case TypePriceBelow:
		return s.Price, s.Price <= a.TargetValue
	case TypeVolumeAbove:
		if s.Volume == nil {
			return 0, false
		}
		return *s.Volume, *s.Volume >= a.TargetValue
	case TypeMarketCapAbove:
		if s.MarketCap == nil {
			return 0, false
		}
		return *s.MarketCap, *s.MarketCap >= a.TargetValue
	}
	return 0, false
}

func less(a, b *Alert) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
