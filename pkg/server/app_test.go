package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainSignal/internal/domain/models"
	"ChainSignal/internal/repository"
	"ChainSignal/internal/usecase"
	"ChainSignal/pkg/config"
	xhttp "ChainSignal/pkg/http"
	"ChainSignal/pkg/scheduler"
)

type emptyObserver struct{}

func (emptyObserver) Observe(context.Context, []models.Target) map[models.Target]usecase.Observation {
	return map[models.Target]usecase.Observation{}
}

type idleSource struct{}

func (idleSource) GetPriceSeries(context.Context, int) ([]models.PricePoint, error) { return nil, nil }
func (idleSource) GetCurrentSnapshot(context.Context) (models.MarketSnapshot, error) {
	return models.MarketSnapshot{}, nil
}
func (idleSource) GetMempoolSnapshot(context.Context) (models.MempoolSnapshot, error) {
	return models.MempoolSnapshot{}, nil
}
func (idleSource) GetLargeTransactions(context.Context, float64, int) ([]models.LargeTransaction, error) {
	return nil, nil
}
func (idleSource) GetTopHolders(context.Context) ([]models.Holder, error) { return nil, nil }
func (idleSource) GetAddressLastActivity(_ context.Context, a string) (models.AddressActivity, error) {
	return models.AddressActivity{Address: a}, nil
}
func (idleSource) GetExchangeFlows(context.Context, int) ([]models.ExchangeFlow, error) {
	return nil, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts)
}

func newTestApp(t *testing.T, opts ...Option) (*App, *scheduler.Scheduler, *usecase.AlertFeed) {
	t.Helper()
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	cfg.Server.ShutdownTimeout = 2 * time.Second

	store := repository.NewMemoryListStore()
	feed := usecase.NewAlertFeed(store, 10)
	pm := usecase.NewPredictionManager(emptyObserver{}, store, usecase.PredictionConfig{})
	engine := usecase.NewAlertEngine(idleSource{}, feed, usecase.DefaultRules(idleSource{}), usecase.AlertEngineConfig{})
	sched := scheduler.New()
	srv := xhttp.NewServer(nil, nil, xhttp.WithAddress("127.0.0.1", 0), xhttp.WithMetricsPath(""))

	return New(cfg, nil, sched, pm, feed, engine, srv, opts...), sched, feed
}

func TestServeRegistersJobsAndShutsDown(t *testing.T) {
	var closed []string
	record := func(name string) func() error {
		return func() error {
			closed = append(closed, name)
			return nil
		}
	}
	app, sched, _ := newTestApp(t, WithCloser("first", record("first")), WithCloser("second", record("second")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	require.Eventually(t, func() bool { return len(sched.Jobs()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{JobGenerate, JobResolve, JobAlerts}, sched.Jobs())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, []string{"second", "first"}, closed)
}

func TestServeForwardsAlerts(t *testing.T) {
	pub := &recordingPublisher{}
	app, sched, feed := newTestApp(t, WithAlertPublisher(pub))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()
	require.Eventually(t, func() bool { return len(sched.Jobs()) == 3 }, 2*time.Second, 10*time.Millisecond)

	feed.Add(context.Background(), models.Alert{ID: "a1", Category: models.CategoryNewWhaleTop100, Timestamp: time.Now()})
	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestShutdownJoinsCloseErrors(t *testing.T) {
	app, _, _ := newTestApp(t, WithCloser("broken", func() error { return errors.New("boom") }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := app.Serve(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close broken: boom")
}
