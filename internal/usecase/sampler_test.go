package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainSignal/internal/domain/models"
)

func TestSampler_PriceSeriesIsSortedAndCurrentIsLast(t *testing.T) {
	src := newFakeSource()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src.prices = []models.PricePoint{
		{Time: base.Add(2 * time.Hour), Price: 3},
		{Time: base, Price: 1},
		{Time: base.Add(time.Hour), Price: 2},
	}
	s := NewSampler(src, SamplerConfig{})
	obs := s.Observe(context.Background(), []models.Target{models.TargetPrice})
	require.NoError(t, obs[models.TargetPrice].Err)
	assert.Equal(t, []float64{1, 2, 3}, obs[models.TargetPrice].Series)
	assert.Equal(t, 3.0, obs[models.TargetPrice].Current)
}

func TestSampler_FailureIsolatedPerSource(t *testing.T) {
	src := newFakeSource()
	src.prices = []models.PricePoint{{Price: 10}}
	src.flowsErr = errBoom
	src.mempool = models.MempoolSnapshot{Count: 1200}

	s := NewSampler(src, SamplerConfig{})
	obs := s.Observe(context.Background(), []models.Target{
		models.TargetPrice, models.TargetExchangeNetflow, models.TargetCorrelationSignal, models.TargetTxVolume,
	})
	assert.NoError(t, obs[models.TargetPrice].Err)
	assert.ErrorIs(t, obs[models.TargetExchangeNetflow].Err, models.ErrDataUnavailable)
	assert.ErrorIs(t, obs[models.TargetCorrelationSignal].Err, models.ErrDataUnavailable)
	assert.NoError(t, obs[models.TargetTxVolume].Err)
	assert.Equal(t, 1200.0, obs[models.TargetTxVolume].Current)
}

func TestSampler_AccumulatesWithSpacing(t *testing.T) {
	src := newFakeSource()
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSampler(src, SamplerConfig{MinSpacing: time.Minute, HistoryCap: 3}, WithSamplerClock(c.Now))

	observe := func(count int) Observation {
		src.mu.Lock()
		src.mempool = models.MempoolSnapshot{Count: count}
		src.mu.Unlock()
		return s.Observe(context.Background(), []models.Target{models.TargetTxVolume})[models.TargetTxVolume]
	}

	observe(1)
	c.Advance(10 * time.Second)
	o := observe(2) // replaces the sample taken 10s earlier
	assert.Equal(t, []float64{2}, o.Series)

	for i := 3; i <= 6; i++ {
		c.Advance(time.Minute)
		o = observe(i)
	}
	assert.Equal(t, []float64{4, 5, 6}, o.Series)
	assert.Equal(t, 3, s.HistoryLen(models.TargetTxVolume))
}

func TestSampler_WhaleTargets(t *testing.T) {
	src := newFakeSource()
	src.largeTx = []models.LargeTransaction{{Amount: 20}, {Amount: 30}}
	src.holders = []models.Holder{{Balance: 100}, {Balance: 50}}
	feed := NewAlertFeed(nil, 0)
	s := NewSampler(src, SamplerConfig{}, WithAlertCounter(feed))

	obs := s.Observe(context.Background(), []models.Target{
		models.TargetLargeTx, models.TargetWhaleMovement, models.TargetHolderTrend, models.TargetWhaleAlertFreq,
	})
	assert.Equal(t, 2.0, obs[models.TargetLargeTx].Current)
	assert.Equal(t, 50.0, obs[models.TargetWhaleMovement].Current)
	assert.Equal(t, 150.0, obs[models.TargetHolderTrend].Current)
	assert.Equal(t, 0.0, obs[models.TargetWhaleAlertFreq].Current)
}

func TestRollingCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6}
	b := []float64{0, 10, 20, 30, 40, 50, 60}
	got := RollingCorrelation(a, b, 3)
	require.Len(t, got, 4)
	for _, v := range got {
		assert.InDelta(t, 1.0, v, 1e-9)
	}

	inv := RollingCorrelation(a, []float64{6, 5, 4, 3, 2, 1}, 6)
	require.Len(t, inv, 1)
	assert.InDelta(t, -1.0, inv[0], 1e-9)

	flat := RollingCorrelation(a, []float64{1, 1, 1, 1, 1, 1}, 3)
	assert.Equal(t, []float64{0, 0, 0, 0}, flat)

	assert.Nil(t, RollingCorrelation(a, b[:2], 3))
}
