package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/internal/usecase"
	"ChainSignal/pkg/config"
	xhttp "ChainSignal/pkg/http"
	"ChainSignal/pkg/logger"
	"ChainSignal/pkg/scheduler"
)

const (
	JobGenerate = "prediction.generate"
	JobResolve  = "prediction.resolve"
	JobAlerts   = "alerts.check"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	sched      *scheduler.Scheduler
	preds      *usecase.PredictionManager
	feed       *usecase.AlertFeed
	engine     *usecase.AlertEngine
	httpServer *xhttp.Server
	publisher  domrepo.AlertPublisher
	closers    []closer
}

type Option func(*App)

// WithAlertPublisher forwards every new alert to p while the app runs.
func WithAlertPublisher(p domrepo.AlertPublisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithCloser registers a resource released on shutdown, in reverse order of
// registration.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, closer{name: name, fn: fn})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *logger.Logger,
	sched *scheduler.Scheduler,
	preds *usecase.PredictionManager,
	feed *usecase.AlertFeed,
	engine *usecase.AlertEngine,
	httpServer *xhttp.Server,
	opts ...Option,
) *App {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{
		cfg:        cfg,
		log:        log,
		sched:      sched,
		preds:      preds,
		feed:       feed,
		engine:     engine,
		httpServer: httpServer,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve restores persisted state, starts the jobs and the HTTP server, and
// shuts everything down once ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.preds.Restore(ctx); err != nil {
		a.log.Warn("app.restore predictions failed, starting empty", logger.Error(err))
	}
	if err := a.feed.Restore(ctx); err != nil {
		a.log.Warn("app.restore alerts failed, starting empty", logger.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.publisher != nil {
		a.feed.Forward(runCtx, a.publisher)
		a.log.Info("alert forwarding started", logger.String("topic", a.cfg.Kafka.AlertsTopic))
	}

	a.sched.EveryNow(JobGenerate, a.cfg.Prediction.GenerateInterval, a.preds.GenerateDue)
	a.sched.Every(JobResolve, a.cfg.Prediction.ResolveInterval, a.preds.Resolve)
	a.sched.EveryNow(JobAlerts, a.cfg.Alerts.CheckInterval, a.engine.Check)
	if err := a.sched.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.httpServer.Start()
	a.log.Info("app started",
		logger.String("env", a.cfg.Environment),
		logger.String("storage", a.cfg.Storage.Backend),
		logger.Strings("jobs", a.sched.Jobs()),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		if err := a.sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotStarted) {
			a.log.Warn("scheduler stop error", logger.Error(err))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.log.Warn("scheduler jobs still running at shutdown deadline")
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		start := time.Now()
		if err := c.fn(); err != nil {
			a.log.Warn("close error", logger.String("resource", c.name), logger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		a.log.Debug("closed", logger.String("resource", c.name), logger.Duration("took", time.Since(start)))
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
