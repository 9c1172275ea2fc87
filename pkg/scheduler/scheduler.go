// Package scheduler runs named jobs on fixed intervals and answers "time until
// next fire" queries.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ChainSignal/pkg/logger"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNotStarted     = errors.New("scheduler not started")
	ErrUnknownJob     = errors.New("unknown job")
)

// Func is a job body. Errors are logged, never propagated.
type Func func(ctx context.Context) error

type job struct {
	name      string
	interval  time.Duration
	immediate bool
	fn        Func
	running   atomic.Bool

	mu      sync.Mutex
	nextRun time.Time
	lastRun time.Time
}

// Scheduler owns a set of interval jobs. A job still running when its next tick
// fires skips that tick.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*job
	order   []string
	log     *logger.Logger
	now     func() time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type Option func(*Scheduler)

func WithLogger(l *logger.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock overrides time.Now for NextRun/Remaining bookkeeping.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs: make(map[string]*job),
		log:  logger.Nop(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Every registers fn under name. Registering after Start or with a non-positive
// interval is ignored.
func (s *Scheduler) Every(name string, interval time.Duration, fn Func) {
	s.register(name, interval, false, fn)
}

// EveryNow is Every plus one immediate run on Start.
func (s *Scheduler) EveryNow(name string, interval time.Duration, fn Func) {
	s.register(name, interval, true, fn)
}

func (s *Scheduler) register(name string, interval time.Duration, immediate bool, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn("scheduler.register after start ignored", logger.String("job", name))
		return
	}
	if interval <= 0 || fn == nil {
		s.log.Warn("scheduler.register invalid job ignored", logger.String("job", name))
		return
	}
	if _, ok := s.jobs[name]; !ok {
		s.order = append(s.order, name)
	}
	s.jobs[name] = &job{name: name, interval: interval, immediate: immediate, fn: fn}
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	jobs := make([]*job, 0, len(s.order))
	for _, name := range s.order {
		jobs = append(jobs, s.jobs[name])
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.setNext(s.now().Add(j.interval))
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info("scheduler started", logger.Int("jobs", len(jobs)))
	return nil
}

// Stop cancels every job loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	fire := func() {
		if !j.running.CompareAndSwap(false, true) {
			s.log.Debug("scheduler.tick skipped, previous run in flight", logger.String("job", j.name))
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer j.running.Store(false)
			s.run(ctx, j)
		}()
	}

	if j.immediate {
		fire()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.setNext(s.now().Add(j.interval))
			fire()
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler.job panicked", logger.String("job", j.name), logger.Any("panic", r))
		}
	}()

	j.mu.Lock()
	j.lastRun = s.now()
	j.mu.Unlock()

	if err := j.fn(ctx); err != nil {
		s.log.Warn("scheduler.job failed",
			logger.String("job", j.name),
			logger.Error(err),
			logger.Duration("duration_ms", time.Since(start)),
		)
		return
	}
	s.log.Debug("scheduler.job done", logger.String("job", j.name), logger.Duration("duration_ms", time.Since(start)))
}

func (j *job) setNext(t time.Time) {
	j.mu.Lock()
	j.nextRun = t
	j.mu.Unlock()
}

// NextRun returns the next planned fire time of a job. It is zero before Start.
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, ErrUnknownJob
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextRun, nil
}

// Remaining is the time until the job next fires, floored at 0.
func (s *Scheduler) Remaining(name string, now time.Time) (time.Duration, error) {
	next, err := s.NextRun(name)
	if err != nil {
		return 0, err
	}
	if next.IsZero() {
		return 0, nil
	}
	return Countdown(next, now), nil
}

// Jobs lists registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Countdown is targetTime - now, floored at 0. Persisted target times resume
// their countdown after a restart through this.
func Countdown(targetTime, now time.Time) time.Duration {
	d := targetTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
