// internal/monitor/poller.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
	"github.com/rovshanmuradov/pumpwatch/internal/pricing"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("poller already started")

// SampleHandler receives every accepted sample. Calls for one mint never overlap.
type SampleHandler func(ctx context.Context, s domain.PriceSample)

// Config configures the poller.
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	// Clock stamps polled samples. Defaults to time.Now.
	Clock func() time.Time
}

// Status is a snapshot of one watched mint.
type Status struct {
	Mint                string
	Refs                int
	Latest              *domain.PriceSample
	ConsecutiveFailures int
	LastError           string
	LastPolledAt        time.Time
}

// Degraded reports whether the last poll failed, leaving Latest out of date.
func (s Status) Degraded() bool {
	return s.ConsecutiveFailures > 0
}

// mintLock serializes delivery for one mint across task restarts. It lives
// while a task, its goroutine or an Offer still holds a reference.
type mintLock struct {
	sync.Mutex
	holders int
}

type task struct {
	mint     string
	refs     int
	cancel   context.CancelFunc
	launched bool
	deliver  *mintLock

	mu       sync.Mutex
	last     *domain.PriceSample
	failures int
	lastErr  error
	lastPoll time.Time
}

// Poller keeps one polling goroutine per watched mint. Mints are watched while
// their reference count is above zero.
type Poller struct {
	cfg     Config
	source  pricing.Source
	handler SampleHandler
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	locks   map[string]*mintLock
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewPoller creates a poller fetching from source.
func NewPoller(cfg Config, source pricing.Source, handler SampleHandler, m *metrics.Metrics, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if handler == nil {
		handler = func(context.Context, domain.PriceSample) {}
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		metrics: m,
		logger:  logger.Named("poller"),
		tasks:   make(map[string]*task),
		locks:   make(map[string]*mintLock),
	}
}

// Start launches tasks for mints acquired so far. Later acquisitions start
// their task immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	for _, t := range p.tasks {
		p.launch(t)
	}
	p.logger.Info("Price poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("watched", len(p.tasks)))
	return nil
}

// Stop cancels every task and waits for their goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("Price poller stopped")
}

// Acquire adds a reference to mint, starting its task on the first one.
func (p *Poller) Acquire(mint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tasks[mint]; ok {
		t.refs++
		return
	}

	t := &task{mint: mint, refs: 1, deliver: p.holdLock(mint)}
	p.tasks[mint] = t
	p.metrics.SetWatched(len(p.tasks))
	if p.running() {
		p.launch(t)
	}
	p.logger.Debug("Watching mint", zap.String("mint", mint))
}

// Release drops a reference to mint and cancels its task at zero. Unknown
// mints are ignored.
func (p *Poller) Release(mint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[mint]
	if !ok {
		return
	}
	t.refs--
	if t.refs > 0 {
		return
	}

	delete(p.tasks, mint)
	p.metrics.SetWatched(len(p.tasks))
	if t.launched {
		t.cancel()
	} else {
		p.dropLock(mint, t.deliver)
	}
	p.logger.Debug("Stopped watching mint", zap.String("mint", mint))
}

// Offer delivers an externally derived sample for a watched mint through the
// same path as polled samples. It returns false when the mint is not watched.
func (p *Poller) Offer(ctx context.Context, s domain.PriceSample) bool {
	p.mu.Lock()
	t, ok := p.tasks[s.Mint]
	if ok {
		t.deliver.holders++
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	defer p.releaseLock(s.Mint, t.deliver)
	return p.deliver(ctx, t, s)
}

// Latest returns the current sample of a watched mint.
func (p *Poller) Latest(mint string) (domain.PriceSample, bool) {
	p.mu.Lock()
	t, ok := p.tasks[mint]
	p.mu.Unlock()
	if !ok {
		return domain.PriceSample{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return domain.PriceSample{}, false
	}
	return *t.last, true
}

// Status returns the poll state of a watched mint.
func (p *Poller) Status(mint string) (Status, bool) {
	p.mu.Lock()
	t, ok := p.tasks[mint]
	var refs int
	if ok {
		refs = t.refs
	}
	p.mu.Unlock()
	if !ok {
		return Status{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st := Status{
		Mint:                mint,
		Refs:                refs,
		ConsecutiveFailures: t.failures,
		LastPolledAt:        t.lastPoll,
	}
	if t.last != nil {
		s := *t.last
		st.Latest = &s
	}
	if t.lastErr != nil {
		st.LastError = t.lastErr.Error()
	}
	return st, true
}

// Watched returns the mints currently polled.
func (p *Poller) Watched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	mints := make([]string, 0, len(p.tasks))
	for m := range p.tasks {
		mints = append(mints, m)
	}
	return mints
}

// running must be called with p.mu held.
func (p *Poller) running() bool {
	return p.ctx != nil && p.ctx.Err() == nil
}

// launch must be called with p.mu held. The goroutine takes over the task's
// hold on the mint lock.
func (p *Poller) launch(t *task) {
	ctx, cancel := context.WithCancel(p.ctx)
	t.cancel = cancel
	t.launched = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.releaseLock(t.mint, t.deliver)
		defer cancel()
		p.runTask(ctx, t)
	}()
}

// holdLock must be called with p.mu held.
func (p *Poller) holdLock(mint string) *mintLock {
	l, ok := p.locks[mint]
	if !ok {
		l = &mintLock{}
		p.locks[mint] = l
	}
	l.holders++
	return l
}

// dropLock must be called with p.mu held.
func (p *Poller) dropLock(mint string, l *mintLock) {
	l.holders--
	if l.holders == 0 && p.locks[mint] == l {
		delete(p.locks, mint)
	}
}

func (p *Poller) releaseLock(mint string, l *mintLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLock(mint, l)
}

func (p *Poller) runTask(ctx context.Context, t *task) {
	p.poll(ctx, t)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, t)
		}
	}
}

func (p *Poller) poll(ctx context.Context, t *task) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	q, err := p.source.FetchPrice(fetchCtx, t.mint)
	cancel()

	if ctx.Err() != nil {
		return
	}

	now := p.cfg.Clock()
	if err != nil {
		p.metrics.Poll(false)
		t.mu.Lock()
		t.failures++
		t.lastErr = err
		t.lastPoll = now
		failures := t.failures
		t.mu.Unlock()

		p.logger.Warn("Failed to get token price",
			zap.String("mint", t.mint),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return
	}

	p.metrics.Poll(true)
	t.mu.Lock()
	t.failures = 0
	t.lastErr = nil
	t.lastPoll = now
	t.mu.Unlock()

	p.deliver(ctx, t, domain.PriceSample{
		Mint:       t.mint,
		Price:      q.Price,
		Volume:     q.Volume,
		MarketCap:  q.MarketCap,
		ObservedAt: now,
		Source:     p.source.Name(),
	})
}

// deliver records s as current and hands it to the handler unless a newer
// sample was already delivered.
func (p *Poller) deliver(ctx context.Context, t *task, s domain.PriceSample) bool {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if t.last != nil && s.ObservedAt.Before(t.last.ObservedAt) {
		t.mu.Unlock()
		p.logger.Debug("Dropping stale sample",
			zap.String("mint", s.Mint),
			zap.String("source", s.Source),
			zap.Time("observed_at", s.ObservedAt))
		return false
	}
	last := s
	t.last = &last
	t.mu.Unlock()

	p.handler(ctx, s)
	return true
}
