package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/pkg/logger"
)

// AlertSink receives the alerts raised by a pass.
type AlertSink interface {
	Add(ctx context.Context, alerts ...models.Alert)
}

type AlertEngineConfig struct {
	LargeTxMinAmount float64
	LargeTxDepth     int
	Disabled         []string
}

type ruleEntry struct {
	rule   Rule
	status models.RuleStatus
}

// AlertEngine evaluates its rules on every Check. At most one pass runs at a
// time; rule state and statuses live on the engine.
type AlertEngine struct {
	ds      domrepo.DataSource
	sink    AlertSink
	cfg     AlertEngineConfig
	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	rules   []*ruleEntry
	byName  map[string]*ruleEntry
	running atomic.Bool
}

type AlertEngineOption func(*AlertEngine)

func WithEngineLogger(l *logger.Logger) AlertEngineOption { return func(e *AlertEngine) { e.log = l } }

func WithEngineMetrics(m domrepo.Metrics) AlertEngineOption {
	return func(e *AlertEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithEngineClock(now func() time.Time) AlertEngineOption {
	return func(e *AlertEngine) { e.now = now }
}

func NewAlertEngine(ds domrepo.DataSource, sink AlertSink, rules []Rule, cfg AlertEngineConfig, opts ...AlertEngineOption) *AlertEngine {
	if cfg.LargeTxMinAmount <= 0 {
		cfg.LargeTxMinAmount = dormantWarningAmount
	}
	if cfg.LargeTxDepth <= 0 {
		cfg.LargeTxDepth = 50
	}
	e := &AlertEngine{
		ds:      ds,
		sink:    sink,
		cfg:     cfg,
		log:     logger.Nop(),
		metrics: domrepo.NopMetrics{},
		now:     time.Now,
		byName:  map[string]*ruleEntry{},
	}
	disabled := map[string]bool{}
	for _, n := range cfg.Disabled {
		disabled[n] = true
	}
	for _, r := range rules {
		entry := &ruleEntry{rule: r, status: models.RuleStatus{
			Name:     r.Name(),
			Category: r.Category(),
			Enabled:  !disabled[r.Name()],
			Status:   models.RuleIdle,
		}}
		e.rules = append(e.rules, entry)
		e.byName[r.Name()] = entry
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Statuses returns a snapshot of every rule status in registration order.
func (e *AlertEngine) Statuses() []models.RuleStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.RuleStatus, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.status)
	}
	return out
}

// Status returns one rule status.
func (e *AlertEngine) Status(name string) (models.RuleStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.byName[name]
	if !ok {
		return models.RuleStatus{}, fmt.Errorf("%w: %s", models.ErrUnknownRule, name)
	}
	return r.status, nil
}

// SetEnabled toggles a rule. Disabled rules are skipped by later passes.
func (e *AlertEngine) SetEnabled(name string, enabled bool) (models.RuleStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.byName[name]
	if !ok {
		return models.RuleStatus{}, fmt.Errorf("%w: %s", models.ErrUnknownRule, name)
	}
	r.status.Enabled = enabled
	e.log.Info("alerts.rule toggled", logger.String("rule", name), logger.Bool("enabled", enabled))
	return r.status, nil
}

// Check is the scheduler entry point. It never returns an error.
func (e *AlertEngine) Check(ctx context.Context) error {
	if _, err := e.CheckNow(ctx); err != nil {
		e.log.Debug("alerts.check skipped", logger.Error(err))
	}
	return nil
}

// CheckNow runs one pass and returns the alerts it raised. It returns
// ErrCheckInProgress when a pass is already running.
func (e *AlertEngine) CheckNow(ctx context.Context) ([]models.Alert, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, models.ErrCheckInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	now := e.now()

	e.mu.Lock()
	var active []*ruleEntry
	need := map[Input]bool{}
	for _, r := range e.rules {
		if !r.status.Enabled {
			continue
		}
		r.status.Status = models.RuleChecking
		active = append(active, r)
		for _, in := range r.rule.Needs() {
			need[in] = true
		}
	}
	e.mu.Unlock()
	if len(active) == 0 {
		return nil, nil
	}
	// the snapshot is optional for the long trap rule; fetch it whenever large txs are needed
	if need[InputLargeTx] {
		need[InputSnapshot] = true
	}

	inputs := e.fetchInputs(ctx, need, now)

	results := make([][]models.Alert, len(active))
	var wg sync.WaitGroup
	for i, r := range active {
		wg.Add(1)
		go func(i int, r *ruleEntry) {
			defer wg.Done()
			results[i] = e.evaluate(ctx, r, inputs, now)
		}(i, r)
	}
	wg.Wait()

	var all []models.Alert
	for _, alerts := range results {
		all = append(all, alerts...)
	}
	if len(all) > 0 && e.sink != nil {
		e.sink.Add(ctx, all...)
	}

	e.metrics.RecordLatency("alerts.check", time.Since(start).Seconds())
	e.log.Info("alerts.check done",
		logger.Int("rules", len(active)),
		logger.Int("alerts", len(all)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return all, nil
}

func (e *AlertEngine) evaluate(ctx context.Context, r *ruleEntry, in *RuleInputs, now time.Time) (alerts []models.Alert) {
	var evalErr error
	defer func() {
		if p := recover(); p != nil {
			evalErr = fmt.Errorf("rule panicked: %v", p)
			alerts = nil
		}
		e.finish(r, now, len(alerts), evalErr)
	}()

	for _, need := range r.rule.Needs() {
		if err := in.Errs[need]; err != nil {
			evalErr = err
			return nil
		}
	}
	alerts, evalErr = r.rule.Evaluate(ctx, in)
	if evalErr != nil {
		return nil
	}
	return alerts
}

func (e *AlertEngine) finish(r *ruleEntry, now time.Time, found int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r.status.LastCheck = now
	switch {
	case err != nil:
		r.status.Status = models.RuleNormal
		r.status.LastError = err.Error()
		e.metrics.RecordError("rule")
		e.log.Warn("alerts.rule degraded", logger.String("rule", r.status.Name), logger.Error(err))
	case found > 0:
		r.status.Status = models.RuleTriggered
		r.status.TriggerCount++
		r.status.LastError = ""
	default:
		r.status.Status = models.RuleNormal
		r.status.LastError = ""
	}
}

func (e *AlertEngine) fetchInputs(ctx context.Context, need map[Input]bool, now time.Time) *RuleInputs {
	in := &RuleInputs{Now: now, Errs: map[Input]error{}}

	type item struct {
		name Input
		val  interface{}
		err  error
	}
	ch := make(chan item, len(need))
	var wg sync.WaitGroup
	call := func(name Input, fn func() (interface{}, error)) {
		if !need[name] {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := fn()
			ch <- item{name, v, err}
		}()
	}

	call(InputLargeTx, func() (interface{}, error) {
		return e.ds.GetLargeTransactions(ctx, e.cfg.LargeTxMinAmount, e.cfg.LargeTxDepth)
	})
	call(InputSnapshot, func() (interface{}, error) { return e.ds.GetCurrentSnapshot(ctx) })
	call(InputMempool, func() (interface{}, error) { return e.ds.GetMempoolSnapshot(ctx) })
	call(InputHolders, func() (interface{}, error) { return e.ds.GetTopHolders(ctx) })

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			in.Errs[it.name] = fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, it.name, it.err)
			e.metrics.RecordError("datasource")
			continue
		}
		switch it.name {
		case InputLargeTx:
			in.LargeTx = it.val.([]models.LargeTransaction)
		case InputSnapshot:
			in.Snapshot = it.val.(models.MarketSnapshot)
		case InputMempool:
			in.Mempool = it.val.(models.MempoolSnapshot)
		case InputHolders:
			in.Holders = it.val.([]models.Holder)
		}
	}
	// inputs nobody asked for count as missing
	for _, name := range []Input{InputLargeTx, InputSnapshot, InputMempool, InputHolders} {
		if !need[name] && in.Errs[name] == nil {
			in.Errs[name] = fmt.Errorf("%w: %s not fetched", models.ErrDataUnavailable, name)
		}
	}
	return in
}
