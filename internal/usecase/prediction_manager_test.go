package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/internal/repository"
)

type fakeObserver struct {
	mu      sync.Mutex
	obs     map[models.Target]Observation
	calls   atomic.Int32
	gate    chan struct{} // when set, Observe blocks until it is closed
	entered chan struct{}
}

func (f *fakeObserver) Observe(_ context.Context, targets []models.Target) map[models.Target]Observation {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[models.Target]Observation{}
	for _, t := range targets {
		if o, ok := f.obs[t]; ok {
			out[t] = o
		} else {
			out[t] = Observation{Err: models.ErrDataUnavailable}
		}
	}
	return out
}

func (f *fakeObserver) set(t models.Target, o Observation) {
	f.mu.Lock()
	f.obs[t] = o
	f.mu.Unlock()
}

type failingStore struct{ saves atomic.Int32 }

func (s *failingStore) LoadList(context.Context, string) ([]json.RawMessage, error) { return nil, nil }
func (s *failingStore) SaveList(context.Context, string, []json.RawMessage, int) error {
	s.saves.Add(1)
	return errors.New("quota exceeded")
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func flatSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestManager(obs Observer, store domrepo.ListStore, c *clock) *PredictionManager {
	return NewPredictionManager(obs, store, PredictionConfig{
		Targets:    []models.Target{models.TargetPrice},
		Timeframes: []models.Timeframe{models.TF1h},
	}, WithPredictionClock(c.Now))
}

func TestGenerateDue_ConstantSeries(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice: {Series: flatSeries(40, 100), Current: 100},
	}}
	m := newTestManager(obs, repository.NewMemoryListStore(), c)

	require.NoError(t, m.GenerateDue(context.Background()))
	got := m.List(PredictionFilter{})
	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, models.DirectionNeutral, p.Direction)
	assert.Equal(t, 15, p.Confidence)
	assert.Equal(t, "price_1h_"+strconv.FormatInt(c.Now().UnixMilli(), 10), p.ID)
	assert.Equal(t, c.Now().Add(time.Hour), p.TargetTime)
	assert.Len(t, p.Signals, 6)
	assert.False(t, p.Resolved)

	// pending slot is not regenerated on the next tick
	c.Advance(10 * time.Minute)
	require.NoError(t, m.GenerateDue(context.Background()))
	assert.Len(t, m.List(PredictionFilter{}), 1)

	// manual generation forces a new one
	created := m.Generate(context.Background(), models.TargetPrice, "")
	assert.Len(t, created, 1)
	assert.Len(t, m.List(PredictionFilter{}), 2)
}

func TestGenerateDue_InsufficientDataKeepsPrevious(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice: {Series: flatSeries(40, 100), Current: 100},
	}}
	m := newTestManager(obs, repository.NewMemoryListStore(), c)
	require.NoError(t, m.GenerateDue(context.Background()))

	obs.set(models.TargetPrice, Observation{Series: flatSeries(10, 100), Current: 100})
	c.Advance(2 * time.Hour)
	require.NoError(t, m.GenerateDue(context.Background()))
	assert.Len(t, m.List(PredictionFilter{}), 1)

	obs.set(models.TargetPrice, Observation{Err: models.ErrDataUnavailable})
	require.NoError(t, m.GenerateDue(context.Background()))
	assert.Len(t, m.List(PredictionFilter{}), 1)
}

func TestGenerate_ConcurrentTriggerIsSkipped(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{
		obs:     map[models.Target]Observation{models.TargetPrice: {Series: flatSeries(40, 100), Current: 100}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	m := newTestManager(obs, repository.NewMemoryListStore(), c)

	done := make(chan []models.Prediction)
	go func() { done <- m.Generate(context.Background(), "", "") }()
	<-obs.entered

	// slot is busy: the second trigger returns without observing
	assert.Empty(t, m.Generate(context.Background(), "", ""))
	close(obs.gate)
	assert.Len(t, <-done, 1)
	assert.Equal(t, int32(1), obs.calls.Load())
}

func seedPrediction(t *testing.T, store domrepo.ListStore, p models.Prediction) {
	t.Helper()
	require.NoError(t, domrepo.SaveRecords(context.Background(), store, domrepo.KeyPredictions, []models.Prediction{p}, DefaultPredictionCap))
}

func TestResolve_WrongDirection(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryListStore()
	created := c.Now().Add(-2 * time.Hour)
	seedPrediction(t, store, models.Prediction{
		ID:              models.PredictionID(models.TargetPrice, models.TF1h, created),
		CreatedAt:       created,
		TargetTime:      created.Add(time.Hour),
		Target:          models.TargetPrice,
		Timeframe:       models.TF1h,
		Direction:       models.DirectionUp,
		CurrentValue:    100,
		PredictedChange: 2,
		PredictedValue:  102,
		Confidence:      60,
	})
	obs := &fakeObserver{obs: map[models.Target]Observation{models.TargetPrice: {Current: 98}}}
	m := newTestManager(obs, store, c)
	require.NoError(t, m.Restore(context.Background()))

	require.NoError(t, m.Resolve(context.Background()))
	got := m.List(PredictionFilter{})
	require.Len(t, got, 1)
	p := got[0]
	assert.True(t, p.Resolved)
	assert.InDelta(t, -2.0, p.ActualChange, 1e-9)
	assert.False(t, p.Accurate)
	assert.InDelta(t, 4.0, p.Error, 1e-9)
	assert.Equal(t, 98.0, p.ActualValue)
	require.NotNil(t, p.Resolution)
	assert.Equal(t, KeyFactorAgainst, p.Resolution.KeyFactor)
	require.NotNil(t, p.ResolvedAt)

	// persisted
	stored, err := domrepo.LoadRecords[models.Prediction](context.Background(), store, domrepo.KeyPredictions)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Resolved)

	// resolving again changes nothing
	again, err := m.ResolveOne(context.Background(), p.ID, 120)
	assert.ErrorIs(t, err, models.ErrStaleResult)
	assert.Equal(t, 98.0, again.ActualValue)
	assert.False(t, again.Accurate)
	assert.InDelta(t, 4.0, again.Error, 1e-9)

	obs.set(models.TargetPrice, Observation{Current: 150})
	require.NoError(t, m.Resolve(context.Background()))
	assert.Equal(t, 98.0, m.List(PredictionFilter{})[0].ActualValue)
}

func TestResolve_FetchFailureLeavesPending(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryListStore()
	created := c.Now().Add(-30 * time.Minute)
	seedPrediction(t, store, models.Prediction{
		ID: "price_15m_1", CreatedAt: created, TargetTime: created.Add(15 * time.Minute),
		Target: models.TargetPrice, Timeframe: models.TF15m, Direction: models.DirectionDown, CurrentValue: 10,
	})
	obs := &fakeObserver{obs: map[models.Target]Observation{}}
	m := newTestManager(obs, store, c)
	require.NoError(t, m.Restore(context.Background()))

	require.NoError(t, m.Resolve(context.Background()))
	assert.False(t, m.List(PredictionFilter{})[0].Resolved)

	obs.set(models.TargetPrice, Observation{Current: 9})
	require.NoError(t, m.Resolve(context.Background()))
	p := m.List(PredictionFilter{})[0]
	assert.True(t, p.Resolved)
	assert.True(t, p.Accurate)
}

func TestResolve_IgnoresUnexpired(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice: {Series: flatSeries(40, 100), Current: 100},
	}}
	m := newTestManager(obs, repository.NewMemoryListStore(), c)
	require.NoError(t, m.GenerateDue(context.Background()))

	require.NoError(t, m.Resolve(context.Background()))
	assert.False(t, m.List(PredictionFilter{})[0].Resolved)

	rem, ok := m.Countdown(models.Slot{Target: models.TargetPrice, Timeframe: models.TF1h})
	require.True(t, ok)
	assert.Equal(t, time.Hour, rem)

	c.Advance(time.Hour)
	require.NoError(t, m.Resolve(context.Background()))
	p := m.List(PredictionFilter{})[0]
	assert.True(t, p.Resolved)
	assert.True(t, p.Accurate) // neutral and flat

	_, ok = m.Countdown(models.Slot{Target: models.TargetPrice, Timeframe: models.TF1h})
	assert.False(t, ok)
}

func TestAccuracy(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryListStore()
	mk := func(id string, age time.Duration, accurate bool, errPct float64) models.Prediction {
		return models.Prediction{
			ID: id, CreatedAt: c.Now().Add(-age), TargetTime: c.Now().Add(-age).Add(time.Hour),
			Target: models.TargetPrice, Timeframe: models.TF1h, Resolved: true, Accurate: accurate, Error: errPct,
		}
	}
	preds := []models.Prediction{
		mk("a", 2*time.Hour, true, 1),
		mk("b", 3*time.Hour, false, 3),
		mk("c", 48*time.Hour, false, 2),
		mk("d", 50*time.Hour, true, 2),
		{ID: "e", Target: models.TargetPrice, Timeframe: models.TF1h, CreatedAt: c.Now(), TargetTime: c.Now().Add(time.Hour)},
	}
	require.NoError(t, domrepo.SaveRecords(context.Background(), store, domrepo.KeyPredictions, preds, DefaultPredictionCap))
	m := newTestManager(&fakeObserver{obs: map[models.Target]Observation{}}, store, c)
	require.NoError(t, m.Restore(context.Background()))

	acc := m.Accuracy(models.TargetPrice)
	assert.Equal(t, 4, acc.TotalPredictions)
	assert.Equal(t, 2, acc.CorrectPredictions)
	assert.InDelta(t, 50.0, acc.Accuracy, 1e-9)
	assert.InDelta(t, 2.0, acc.AvgError, 1e-9)
	assert.InDelta(t, 50.0, acc.Last24hAccuracy, 1e-9)

	slotAcc, ok := m.SlotAccuracy(models.Slot{Target: models.TargetPrice, Timeframe: models.TF1h})
	assert.True(t, ok)
	assert.InDelta(t, 50.0, slotAcc, 1e-9)

	_, ok = m.SlotAccuracy(models.Slot{Target: models.TargetPrice, Timeframe: models.TF4h})
	assert.False(t, ok)

	empty := m.Accuracy(models.TargetLargeTx)
	assert.Equal(t, 0, empty.TotalPredictions)
}

func TestPersistenceFailureIsSwallowed(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice: {Series: flatSeries(40, 100), Current: 100},
	}}
	store := &failingStore{}
	m := newTestManager(obs, store, c)

	require.NoError(t, m.GenerateDue(context.Background()))
	assert.Equal(t, int32(1), store.saves.Load())
	assert.Len(t, m.List(PredictionFilter{}), 1)
}

func TestRestore_ResumesCountdownAcrossInstances(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryListStore()
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice: {Series: flatSeries(40, 100), Current: 100},
	}}
	first := newTestManager(obs, store, c)
	require.NoError(t, first.GenerateDue(context.Background()))

	c.Advance(25 * time.Minute)
	second := newTestManager(obs, store, c)
	require.NoError(t, second.Restore(context.Background()))
	rem, ok := second.Countdown(models.Slot{Target: models.TargetPrice, Timeframe: models.TF1h})
	require.True(t, ok)
	assert.Equal(t, 35*time.Minute, rem)

	require.NoError(t, second.GenerateDue(context.Background()))
	assert.Len(t, second.List(PredictionFilter{}), 1)
}

func TestList_FilterAndLimit(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice:   {Series: flatSeries(40, 100), Current: 100},
		models.TargetLargeTx: {Series: flatSeries(30, 4), Current: 4},
	}}
	m := NewPredictionManager(obs, repository.NewMemoryListStore(), PredictionConfig{
		Targets:    []models.Target{models.TargetPrice, models.TargetLargeTx},
		Timeframes: models.AllTimeframes(),
	}, WithPredictionClock(c.Now))

	require.NoError(t, m.GenerateDue(context.Background()))
	assert.Len(t, m.List(PredictionFilter{}), 8)
	assert.Len(t, m.List(PredictionFilter{Target: models.TargetLargeTx}), 4)
	assert.Len(t, m.List(PredictionFilter{Timeframe: models.TF4h}), 2)
	assert.Len(t, m.List(PredictionFilter{Limit: 3}), 3)
	assert.Len(t, m.Active(), 8)
}

func TestGenerate_ManualRegenerationSupersedesPending(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice: {Series: flatSeries(40, 100), Current: 100},
	}}
	m := newTestManager(obs, repository.NewMemoryListStore(), c)
	slot := models.Slot{Target: models.TargetPrice, Timeframe: models.TF1h}

	first := m.Generate(context.Background(), models.TargetPrice, models.TF1h)
	require.Len(t, first, 1)
	c.Advance(time.Minute)
	second := m.Generate(context.Background(), models.TargetPrice, models.TF1h)
	require.Len(t, second, 1)

	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second[0].ID, active[slot].ID)
	left, ok := m.Countdown(slot)
	require.True(t, ok)
	assert.Equal(t, time.Hour, left)

	open := 0
	for _, p := range m.List(PredictionFilter{}) {
		if p.Open() {
			open++
		}
	}
	assert.Equal(t, 1, open)

	c.Advance(2 * time.Hour)
	require.NoError(t, m.Resolve(context.Background()))

	acc := m.Accuracy(models.TargetPrice)
	assert.Equal(t, 1, acc.TotalPredictions)
	byID := map[string]models.Prediction{}
	for _, p := range m.List(PredictionFilter{}) {
		byID[p.ID] = p
	}
	assert.True(t, byID[first[0].ID].Superseded)
	assert.False(t, byID[first[0].ID].Resolved)
	assert.True(t, byID[second[0].ID].Resolved)

	_, err := m.ResolveOne(context.Background(), first[0].ID, 100)
	assert.ErrorIs(t, err, models.ErrStaleResult)
}

func TestGenerate_SameMillisecondIDsAreUnique(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	obs := &fakeObserver{obs: map[models.Target]Observation{
		models.TargetPrice: {Series: flatSeries(40, 100), Current: 100},
	}}
	m := newTestManager(obs, repository.NewMemoryListStore(), c)

	first := m.Generate(context.Background(), models.TargetPrice, models.TF1h)
	second := m.Generate(context.Background(), models.TargetPrice, models.TF1h)
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	ms := c.Now().UnixMilli()
	assert.Equal(t, "price_1h_"+strconv.FormatInt(ms, 10), first[0].ID)
	assert.Equal(t, "price_1h_"+strconv.FormatInt(ms+1, 10), second[0].ID)
	assert.Equal(t, first[0].CreatedAt, second[0].CreatedAt)

	c.Advance(2 * time.Hour)
	require.NoError(t, m.Resolve(context.Background()))
	resolved := 0
	for _, p := range m.List(PredictionFilter{}) {
		if p.Resolved {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved)
}
