package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/internal/services/signals"
	"ChainSignal/pkg/capped"
	"ChainSignal/pkg/logger"
	"ChainSignal/pkg/scheduler"
)

// DefaultPredictionCap is the persisted prediction history length.
const DefaultPredictionCap = 500

// Observer supplies input series and current values per target.
type Observer interface {
	Observe(ctx context.Context, targets []models.Target) map[models.Target]Observation
}

type PredictionConfig struct {
	Targets    []models.Target
	Timeframes []models.Timeframe
	HistoryCap int
}

// PredictionManager owns the prediction list: it generates predictions per
// (target, timeframe) slot, resolves them when their horizon elapses and
// derives accuracy from the resolved history.
type PredictionManager struct {
	obs     Observer
	store   domrepo.ListStore
	archive domrepo.PredictionArchive
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
	cfg     PredictionConfig

	list *capped.List[models.Prediction]

	locksMu   sync.Mutex
	slotLocks map[models.Slot]*sync.Mutex
	lastIDs   map[models.Slot]int64 // unix ms of the newest id per slot
	resolving atomic.Bool
}

type PredictionOption func(*PredictionManager)

func WithPredictionArchive(a domrepo.PredictionArchive) PredictionOption {
	return func(m *PredictionManager) { m.archive = a }
}

func WithPredictionMetrics(mt domrepo.Metrics) PredictionOption {
	return func(m *PredictionManager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

func WithPredictionLogger(l *logger.Logger) PredictionOption {
	return func(m *PredictionManager) { m.log = l }
}

func WithPredictionClock(now func() time.Time) PredictionOption {
	return func(m *PredictionManager) { m.now = now }
}

func NewPredictionManager(obs Observer, store domrepo.ListStore, cfg PredictionConfig, opts ...PredictionOption) *PredictionManager {
	if len(cfg.Targets) == 0 {
		cfg.Targets = models.AllTargets()
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = models.AllTimeframes()
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultPredictionCap
	}
	m := &PredictionManager{
		obs:       obs,
		store:     store,
		metrics:   domrepo.NopMetrics{},
		log:       logger.Nop(),
		now:       time.Now,
		cfg:       cfg,
		list:      capped.New[models.Prediction](cfg.HistoryCap),
		slotLocks: make(map[models.Slot]*sync.Mutex),
		lastIDs:   make(map[models.Slot]int64),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Restore loads persisted predictions so countdowns resume from their stored
// target times.
func (m *PredictionManager) Restore(ctx context.Context) error {
	preds, err := domrepo.LoadRecords[models.Prediction](ctx, m.store, domrepo.KeyPredictions)
	if err != nil {
		return fmt.Errorf("%w: load predictions: %v", models.ErrPersistence, err)
	}
	m.list.Replace(preds)
	m.locksMu.Lock()
	for _, p := range m.list.Items() {
		if ms := p.CreatedAt.UnixMilli(); ms > m.lastIDs[p.Slot()] {
			m.lastIDs[p.Slot()] = ms
		}
	}
	m.locksMu.Unlock()
	m.log.Info("prediction.restore done", logger.Int("count", m.list.Len()))
	return nil
}

// Slots lists every configured (target, timeframe) pair.
func (m *PredictionManager) Slots() []models.Slot {
	out := make([]models.Slot, 0, len(m.cfg.Targets)*len(m.cfg.Timeframes))
	for _, t := range m.cfg.Targets {
		for _, tf := range m.cfg.Timeframes {
			out = append(out, models.Slot{Target: t, Timeframe: tf})
		}
	}
	return out
}

// GenerateDue is the scheduler entry point: it generates for every slot that
// has no pending prediction. It never returns an error.
func (m *PredictionManager) GenerateDue(ctx context.Context) error {
	now := m.now()
	pending := map[models.Slot]bool{}
	for _, p := range m.list.Items() {
		if p.Pending(now) {
			pending[p.Slot()] = true
		}
	}
	var due []models.Slot
	for _, s := range m.Slots() {
		if !pending[s] {
			due = append(due, s)
		}
	}
	if len(due) == 0 {
		return nil
	}
	m.generate(ctx, due)
	return nil
}

// Generate forces generation for the selected slots. Empty target or timeframe
// selects all configured ones.
func (m *PredictionManager) Generate(ctx context.Context, target models.Target, tf models.Timeframe) []models.Prediction {
	var slots []models.Slot
	for _, s := range m.Slots() {
		if (target == "" || s.Target == target) && (tf == "" || s.Timeframe == tf) {
			slots = append(slots, s)
		}
	}
	return m.generate(ctx, slots)
}

func (m *PredictionManager) slotLock(s models.Slot) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	mu, ok := m.slotLocks[s]
	if !ok {
		mu = &sync.Mutex{}
		m.slotLocks[s] = mu
	}
	return mu
}

func (m *PredictionManager) generate(ctx context.Context, slots []models.Slot) []models.Prediction {
	start := time.Now()

	var held []models.Slot
	for _, s := range slots {
		mu := m.slotLock(s)
		if !mu.TryLock() {
			m.log.Debug("prediction.generate skipped, slot busy", logger.String("slot", s.String()))
			continue
		}
		held = append(held, s)
	}
	defer func() {
		for _, s := range held {
			m.slotLock(s).Unlock()
		}
	}()
	if len(held) == 0 {
		return nil
	}

	seen := map[models.Target]bool{}
	var targets []models.Target
	for _, s := range held {
		if !seen[s.Target] {
			seen[s.Target] = true
			targets = append(targets, s.Target)
		}
	}
	observed := m.obs.Observe(ctx, targets)

	var created []models.Prediction
	for _, s := range held {
		p, err := m.build(s, observed[s.Target])
		if err != nil {
			m.log.Info("prediction.generate skipped",
				logger.String("slot", s.String()),
				logger.Error(err),
			)
			continue
		}
		if n := m.supersede(s); n > 0 {
			m.log.Debug("prediction.generate superseded pending", logger.String("slot", s.String()), logger.Int("count", n))
		}
		m.list.Push(p)
		created = append(created, p)
		m.metrics.RecordPredictionGenerated(string(p.Target), string(p.Timeframe), p.Confidence)
	}

	if len(created) > 0 {
		m.persist(ctx)
	}
	m.metrics.RecordLatency("prediction.generate", time.Since(start).Seconds())
	m.log.Info("prediction.generate done",
		logger.Int("slots", len(held)),
		logger.Int("created", len(created)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return created
}

// supersede retires the slot's open predictions so the slot keeps a single
// active one. Superseded predictions are neither resolved nor scored.
func (m *PredictionManager) supersede(s models.Slot) int {
	return m.list.Update(func(p *models.Prediction) bool {
		if p.Slot() != s || !p.Open() {
			return false
		}
		p.Superseded = true
		return true
	})
}

// idTime returns the time encoded in a new id for the slot: now, moved one
// millisecond past the slot's previous id when they would collide.
func (m *PredictionManager) idTime(s models.Slot, now time.Time) time.Time {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	ms := now.UnixMilli()
	if last, ok := m.lastIDs[s]; ok && ms <= last {
		ms = last + 1
	}
	m.lastIDs[s] = ms
	return time.UnixMilli(ms)
}

func (m *PredictionManager) build(s models.Slot, obs Observation) (models.Prediction, error) {
	if obs.Err != nil {
		return models.Prediction{}, obs.Err
	}
	if obs.Series == nil {
		return models.Prediction{}, fmt.Errorf("%w: no observation", models.ErrDataUnavailable)
	}
	sigs, reasons, err := signals.Build(obs.Series)
	if err != nil {
		return models.Prediction{}, err
	}
	agg := signals.Aggregate(sigs, obs.Current)

	acc, ok := m.SlotAccuracy(s)
	if !ok {
		acc = signals.NeutralAccuracy
	}

	now := m.now()
	return models.Prediction{
		ID:              models.PredictionID(s.Target, s.Timeframe, m.idTime(s, now)),
		CreatedAt:       now,
		TargetTime:      now.Add(s.Timeframe.Duration()),
		Target:          s.Target,
		Timeframe:       s.Timeframe,
		Direction:       agg.Direction,
		CurrentValue:    obs.Current,
		PredictedValue:  agg.PredictedValue,
		PredictedChange: agg.Change,
		Confidence:      signals.AdjustConfidence(agg.Confidence, acc),
		Signals:         sigs,
		Reasons:         reasons,
	}, nil
}

// Resolve is the scheduler entry point for expired predictions. Overlapping
// calls are skipped. Predictions whose target cannot be observed stay
// unresolved until the next call.
func (m *PredictionManager) Resolve(ctx context.Context) error {
	if !m.resolving.CompareAndSwap(false, true) {
		m.log.Debug("prediction.resolve skipped, already running")
		return nil
	}
	defer m.resolving.Store(false)

	now := m.now()
	var expired []models.Prediction
	seen := map[models.Target]bool{}
	var targets []models.Target
	for _, p := range m.list.Items() {
		if !p.Open() || !p.Expired(now) {
			continue
		}
		expired = append(expired, p)
		if !seen[p.Target] {
			seen[p.Target] = true
			targets = append(targets, p.Target)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	observed := m.obs.Observe(ctx, targets)

	var resolved []models.Prediction
	for _, p := range expired {
		obs := observed[p.Target]
		if obs.Err != nil {
			m.log.Warn("prediction.resolve deferred", logger.String("id", p.ID), logger.Error(obs.Err))
			continue
		}
		r, err := m.applyResolution(p.ID, obs.Current, m.now())
		if err != nil {
			if errors.Is(err, models.ErrStaleResult) {
				m.log.Debug("prediction.resolve stale result discarded", logger.String("id", p.ID))
			}
			continue
		}
		resolved = append(resolved, r)
	}

	if len(resolved) == 0 {
		return nil
	}
	m.persist(ctx)
	if m.archive != nil {
		if err := m.archive.ArchiveResolved(ctx, resolved); err != nil {
			m.metrics.RecordError("archive")
			m.log.Warn("prediction.archive failed", logger.Int("count", len(resolved)), logger.Error(err))
		}
	}
	m.log.Info("prediction.resolve done", logger.Int("resolved", len(resolved)), logger.Int("expired", len(expired)))
	return nil
}

// ResolveOne applies an observed actual value to one prediction. A prediction
// that is already resolved is left untouched and ErrStaleResult is returned.
func (m *PredictionManager) ResolveOne(ctx context.Context, id string, actual float64) (models.Prediction, error) {
	p, err := m.applyResolution(id, actual, m.now())
	if err != nil {
		return p, err
	}
	m.persist(ctx)
	return p, nil
}

func (m *PredictionManager) applyResolution(id string, actual float64, at time.Time) (models.Prediction, error) {
	var (
		out   models.Prediction
		found bool
		stale bool
	)
	m.list.Update(func(p *models.Prediction) bool {
		if p.ID != id {
			return false
		}
		found = true
		if !p.Open() {
			stale = true
			out = *p
			return false
		}
		o := Score(*p, actual)
		ex := Explain(*p, actual)
		resolvedAt := at
		p.Resolved = true
		p.ResolvedAt = &resolvedAt
		p.ActualValue = actual
		p.ActualChange = o.ActualChange
		p.Accurate = o.Accurate
		p.Error = o.Error
		p.Resolution = &ex
		out = *p
		return true
	})
	switch {
	case !found:
		return out, fmt.Errorf("%w: prediction %s no longer tracked", models.ErrStaleResult, id)
	case stale && out.Superseded:
		return out, fmt.Errorf("%w: prediction %s superseded", models.ErrStaleResult, id)
	case stale:
		return out, fmt.Errorf("%w: prediction %s already resolved", models.ErrStaleResult, id)
	}
	m.metrics.RecordPredictionResolved(string(out.Target), out.Accurate)
	return out, nil
}

func (m *PredictionManager) persist(ctx context.Context) {
	err := domrepo.SaveRecords(ctx, m.store, domrepo.KeyPredictions, m.list.Items(), m.cfg.HistoryCap)
	if err != nil {
		m.metrics.RecordError("persistence")
		m.log.Warn("prediction.persist failed", logger.Error(fmt.Errorf("%w: %v", models.ErrPersistence, err)))
	}
}

// PredictionFilter narrows List. Zero values match everything.
type PredictionFilter struct {
	Target    models.Target
	Timeframe models.Timeframe
	Limit     int
}

// List returns predictions most recent first.
func (m *PredictionManager) List(f PredictionFilter) []models.Prediction {
	var out []models.Prediction
	for _, p := range m.list.Items() {
		if f.Target != "" && p.Target != f.Target {
			continue
		}
		if f.Timeframe != "" && p.Timeframe != f.Timeframe {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Active returns the open prediction per slot.
func (m *PredictionManager) Active() map[models.Slot]models.Prediction {
	out := map[models.Slot]models.Prediction{}
	for _, p := range m.list.Items() {
		if !p.Open() {
			continue
		}
		if _, ok := out[p.Slot()]; !ok {
			out[p.Slot()] = p
		}
	}
	return out
}

// Countdown returns the time left on the slot's open prediction.
func (m *PredictionManager) Countdown(s models.Slot) (time.Duration, bool) {
	p, ok := m.Active()[s]
	if !ok {
		return 0, false
	}
	return scheduler.Countdown(p.TargetTime, m.now()), true
}

// Accuracy computes statistics for one target. Empty target covers every target.
func (m *PredictionManager) Accuracy(target models.Target) models.PredictionAccuracy {
	return m.accuracy(func(p models.Prediction) bool { return target == "" || p.Target == target }, target)
}

// AccuracyByTarget computes statistics for every configured target.
func (m *PredictionManager) AccuracyByTarget() []models.PredictionAccuracy {
	out := make([]models.PredictionAccuracy, 0, len(m.cfg.Targets))
	for _, t := range m.cfg.Targets {
		out = append(out, m.Accuracy(t))
	}
	return out
}

// SlotAccuracy is the accuracy percentage of a slot, false when it has no
// resolved predictions.
func (m *PredictionManager) SlotAccuracy(s models.Slot) (float64, bool) {
	acc := m.accuracy(func(p models.Prediction) bool { return p.Slot() == s }, s.Target)
	return acc.Accuracy, acc.TotalPredictions > 0
}

func (m *PredictionManager) accuracy(match func(models.Prediction) bool, target models.Target) models.PredictionAccuracy {
	res := models.PredictionAccuracy{Target: target}
	cutoff := m.now().Add(-24 * time.Hour)

	var errSum float64
	var recent, recentCorrect int
	for _, p := range m.list.Items() {
		if !p.Resolved || !match(p) {
			continue
		}
		res.TotalPredictions++
		errSum += p.Error
		if p.Accurate {
			res.CorrectPredictions++
		}
		if p.CreatedAt.After(cutoff) {
			recent++
			if p.Accurate {
				recentCorrect++
			}
		}
	}
	if res.TotalPredictions > 0 {
		res.Accuracy = float64(res.CorrectPredictions) / float64(res.TotalPredictions) * 100
		res.AvgError = errSum / float64(res.TotalPredictions)
	}
	if recent > 0 {
		res.Last24hAccuracy = float64(recentCorrect) / float64(recent) * 100
	}
	return res
}
