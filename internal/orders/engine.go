// internal/orders/engine.go
package orders

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

// Config configures the engine.
type Config struct {
	ExecutionTimeout time.Duration
	Clock            func() time.Time
}

const evalStripes = 64

// Engine owns all conditional orders, evaluates them against price samples
// and hands triggered orders to the Executor.
type Engine struct {
	mu       sync.RWMutex
	orders   map[string]*Order
	active   map[string]map[string]*Order // mint -> id -> order
	lastEval map[string]time.Time

	// evalMu serializes evaluation per mint. Executions run outside it.
	evalMu [evalStripes]sync.Mutex

	inflight sync.WaitGroup

	cfg      Config
	tracker  Tracker
	executor Executor
	updates  *events.Registry[Order]
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewEngine creates an engine executing through executor.
func NewEngine(cfg Config, tracker Tracker, executor Executor, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger = logger.Named("orders")
	return &Engine{
		orders:   make(map[string]*Order),
		active:   make(map[string]map[string]*Order),
		lastEval: make(map[string]time.Time),
		cfg:      cfg,
		tracker:  tracker,
		executor: executor,
		updates:  events.NewRegistry[Order]("updates", logger),
		metrics:  m,
		logger:   logger,
	}
}

// CreateStopLoss registers an order selling when price <= trigger.
func (e *Engine) CreateStopLoss(req CreateRequest) (Order, error) {
	return e.createFixed(KindStopLoss, req)
}

// CreateTakeProfit registers an order selling when price >= trigger.
func (e *Engine) CreateTakeProfit(req CreateRequest) (Order, error) {
	return e.createFixed(KindTakeProfit, req)
}

func (e *Engine) createFixed(kind Kind, req CreateRequest) (Order, error) {
	if err := req.validate(); err != nil {
		return Order{}, err
	}
	now := e.cfg.Clock()
	return e.add(&Order{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		PositionID:   req.PositionID,
		Mint:         req.Mint,
		WalletRef:    req.WalletRef,
		Kind:         kind,
		TriggerPrice: req.TriggerPrice,
		Amount:       req.Amount,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}), nil
}

// CreateTrailingStop registers a trailing stop whose peak starts at the
// reference price.
func (e *Engine) CreateTrailingStop(req TrailingRequest) (Order, error) {
	if err := req.validate(); err != nil {
		return Order{}, err
	}
	now := e.cfg.Clock()
	stop := trailingStop(req.ReferencePrice, req.TrailingPercent)
	return e.add(&Order{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		PositionID:       req.PositionID,
		Mint:             req.Mint,
		WalletRef:        req.WalletRef,
		Kind:             KindTrailingStop,
		TriggerPrice:     stop,
		Amount:           req.Amount,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
		TrailingPercent:  req.TrailingPercent,
		HighestPriceSeen: req.ReferencePrice,
		CurrentStopPrice: stop,
	}), nil
}

func (e *Engine) add(o *Order) Order {
	e.tracker.Acquire(o.Mint)

	e.mu.Lock()
	e.orders[o.ID] = o
	byMint, ok := e.active[o.Mint]
	if !ok {
		byMint = make(map[string]*Order)
		e.active[o.Mint] = byMint
	}
	byMint[o.ID] = o
	out := o.clone()
	e.mu.Unlock()

	e.logger.Info("Order created",
		zap.String("id", o.ID),
		zap.String("kind", string(o.Kind)),
		zap.String("mint", o.Mint),
		zap.String("trigger_price", o.TriggerPrice.String()),
		zap.String("amount", o.Amount.String()))
	return out
}

// Cancel moves an active order to cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) (Order, error) {
	e.mu.Lock()
	o, ok := e.orders[id]
	if !ok {
		e.mu.Unlock()
		return Order{}, ErrNotFound
	}
	if o.Status != StatusActive {
		e.mu.Unlock()
		return Order{}, ErrNotCancellable
	}
	o.Status = StatusCancelled
	o.UpdatedAt = e.cfg.Clock()
	e.deactivate(o)
	out := o.clone()
	e.mu.Unlock()

	e.tracker.Release(out.Mint)
	e.logger.Info("Order cancelled", zap.String("id", id))
	e.updates.Publish(ctx, out)
	return out, nil
}

// Evaluate applies a sample to the active orders on its mint and returns the
// orders it triggered. Each triggered order is executed in the background;
// cancelling ctx does not abort an execution already started. Wait blocks
// until those executions have recorded their result.
func (e *Engine) Evaluate(ctx context.Context, s domain.PriceSample) []Order {
	lock := e.lockFor(s.Mint)
	lock.Lock()
	defer lock.Unlock()

	price := decimal.NewFromFloat(s.Price)

	e.mu.Lock()
	byMint := e.active[s.Mint]
	if len(byMint) == 0 {
		e.mu.Unlock()
		return nil
	}
	if last, ok := e.lastEval[s.Mint]; ok && s.ObservedAt.Before(last) {
		e.mu.Unlock()
		e.metrics.StaleSample("orders")
		e.logger.Debug("Ignoring stale sample",
			zap.String("mint", s.Mint),
			zap.Time("observed_at", s.ObservedAt))
		return nil
	}
	e.lastEval[s.Mint] = s.ObservedAt

	candidates := make([]*Order, 0, len(byMint))
	for _, o := range byMint {
		candidates = append(candidates, o)
	}
	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	now := e.cfg.Clock()
	var triggered []Order
	for _, o := range candidates {
		if o.observePeak(price) {
			o.UpdatedAt = now
			e.logger.Debug("Trailing stop raised",
				zap.String("id", o.ID),
				zap.String("peak", o.HighestPriceSeen.String()),
				zap.String("stop", o.CurrentStopPrice.String()))
		}
		if !o.shouldTrigger(price) {
			continue
		}
		at, p := now, price
		o.Status = StatusTriggered
		o.TriggeredAt = &at
		o.TriggeredPrice = &p
		o.UpdatedAt = now
		e.deactivate(o)
		triggered = append(triggered, o.clone())
	}
	e.mu.Unlock()

	for _, o := range triggered {
		e.metrics.OrderTriggered(string(o.Kind))
		e.logger.Info("Order triggered",
			zap.String("id", o.ID),
			zap.String("kind", string(o.Kind)),
			zap.String("mint", o.Mint),
			zap.String("trigger_price", o.TriggerPrice.String()),
			zap.String("price", price.String()))
		e.updates.Publish(ctx, o)

		e.inflight.Add(1)
		go func(o Order) {
			defer e.inflight.Done()
			e.execute(context.WithoutCancel(ctx), o)
		}(o)
	}
	return triggered
}

// Wait blocks until every execution started so far has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) execute(ctx context.Context, o Order) Order {
	execCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
	defer cancel()

	req := ExecutionRequest{
		OrderID:       o.ID,
		UserID:        o.UserID,
		PositionID:    o.PositionID,
		Mint:          o.Mint,
		WalletRef:     o.WalletRef,
		Kind:          o.Kind,
		Side:          string(domain.SideSell),
		Amount:        o.Amount,
		TriggerPrice:  o.TriggerPrice,
		ObservedPrice: *o.TriggeredPrice,
		TriggeredAt:   *o.TriggeredAt,
	}

	var res ExecutionResult
	err := e.metrics.MeasureExecution(func() error {
		var err error
		res, err = e.executor.Execute(execCtx, req)
		if err == nil && !res.Success {
			msg := res.Error
			if msg == "" {
				msg = "execution rejected"
			}
			err = errors.New(msg)
		}
		return err
	})

	e.mu.Lock()
	stored := e.orders[o.ID]
	stored.UpdatedAt = e.cfg.Clock()
	if err != nil {
		stored.Status = StatusFailed
		stored.Error = err.Error()
	} else {
		stored.Status = StatusExecuted
		stored.ExecutionRef = res.ExecutionRef
	}
	out := stored.clone()
	e.mu.Unlock()

	e.tracker.Release(out.Mint)
	if err != nil {
		e.logger.Error("Order execution failed",
			zap.String("id", out.ID),
			zap.String("mint", out.Mint),
			zap.Error(err))
	} else {
		e.logger.Info("Order executed",
			zap.String("id", out.ID),
			zap.String("mint", out.Mint),
			zap.String("execution_ref", out.ExecutionRef))
	}
	e.updates.Publish(ctx, out)
	return out
}

// Get returns a copy of an order.
func (e *Engine) Get(id string) (Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	o, ok := e.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o.clone(), nil
}

// List returns copies of matching orders, oldest first.
func (e *Engine) List(f Filter) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := make([]*Order, 0)
	for _, o := range e.orders {
		if f.match(o) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	out := make([]Order, len(matched))
	for i, o := range matched {
		out[i] = o.clone()
	}
	return out
}

// OnUpdate registers a handler called on every status transition.
func (e *Engine) OnUpdate(h events.Handler[Order]) events.Unsubscribe {
	return e.updates.Subscribe(h)
}

// deactivate must be called with e.mu held.
func (e *Engine) deactivate(o *Order) {
	byMint := e.active[o.Mint]
	delete(byMint, o.ID)
	if len(byMint) == 0 {
		delete(e.active, o.Mint)
		delete(e.lastEval, o.Mint)
	}
}

func (e *Engine) lockFor(mint string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(mint))
	return &e.evalMu[h.Sum32()%evalStripes]
}

func less(a, b *Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
