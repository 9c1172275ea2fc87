package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/pkg/logger"
)

// AlertCounter reports how many alerts were raised since a point in time.
type AlertCounter interface {
	CountSince(t time.Time) int
}

// SamplerConfig sizes the data source calls and the accumulated histories.
type SamplerConfig struct {
	PriceWindow       int
	FlowDays          int
	LargeTxMinAmount  float64
	LargeTxDepth      int
	HistoryCap        int
	MinSpacing        time.Duration
	CorrelationWindow int
}

func (c *SamplerConfig) withDefaults() {
	if c.PriceWindow <= 0 {
		c.PriceWindow = 100
	}
	if c.FlowDays <= 0 {
		c.FlowDays = 60
	}
	if c.LargeTxMinAmount <= 0 {
		c.LargeTxMinAmount = 10
	}
	if c.LargeTxDepth <= 0 {
		c.LargeTxDepth = 50
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 200
	}
	if c.MinSpacing <= 0 {
		c.MinSpacing = time.Minute
	}
	if c.CorrelationWindow <= 1 {
		c.CorrelationWindow = 14
	}
}

// Observation is the input series and the latest value of one target.
type Observation struct {
	Series  []float64
	Current float64
	Err     error
}

type source string

const (
	srcPrice   source = "price_series"
	srcFlows   source = "exchange_flows"
	srcMempool source = "mempool"
	srcLargeTx source = "large_transactions"
	srcHolders source = "top_holders"
)

func sourcesFor(t models.Target) []source {
	switch t {
	case models.TargetPrice:
		return []source{srcPrice}
	case models.TargetExchangeNetflow:
		return []source{srcFlows}
	case models.TargetCorrelationSignal:
		return []source{srcPrice, srcFlows}
	case models.TargetTxVolume:
		return []source{srcMempool}
	case models.TargetLargeTx, models.TargetWhaleMovement:
		return []source{srcLargeTx}
	case models.TargetHolderTrend:
		return []source{srcHolders}
	default:
		return nil
	}
}

type timedSample struct {
	at    time.Time
	value float64
}

// Sampler turns data source calls into per-target series. Targets without a
// native history (mempool size, large tx counts, holder balances, alert rate)
// are accumulated one sample per observation on the sampler instance.
type Sampler struct {
	ds      domrepo.DataSource
	prices  domrepo.PriceSeriesSource
	alerts  AlertCounter
	cfg     SamplerConfig
	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time

	mu      sync.Mutex
	history map[models.Target][]timedSample
}

type SamplerOption func(*Sampler)

// WithPriceSource reads the price series from ps instead of the data source.
func WithPriceSource(ps domrepo.PriceSeriesSource) SamplerOption {
	return func(s *Sampler) {
		if ps != nil {
			s.prices = ps
		}
	}
}

func WithAlertCounter(c AlertCounter) SamplerOption { return func(s *Sampler) { s.alerts = c } }

func WithSamplerLogger(l *logger.Logger) SamplerOption { return func(s *Sampler) { s.log = l } }

func WithSamplerMetrics(m domrepo.Metrics) SamplerOption {
	return func(s *Sampler) { s.metrics = m }
}

func WithSamplerClock(now func() time.Time) SamplerOption { return func(s *Sampler) { s.now = now } }

func NewSampler(ds domrepo.DataSource, cfg SamplerConfig, opts ...SamplerOption) *Sampler {
	cfg.withDefaults()
	s := &Sampler{
		ds:      ds,
		prices:  ds,
		cfg:     cfg,
		log:     logger.Nop(),
		metrics: domrepo.NopMetrics{},
		now:     time.Now,
		history: make(map[models.Target][]timedSample),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type fetched struct {
	prices  []float64
	flows   []float64
	mempool models.MempoolSnapshot
	largeTx []models.LargeTransaction
	holders []models.Holder
	errs    map[source]error
}

// Observe fetches every source the targets need concurrently and returns one
// Observation per target. A failing source only fails the targets that need it.
func (s *Sampler) Observe(ctx context.Context, targets []models.Target) map[models.Target]Observation {
	need := map[source]bool{}
	for _, t := range targets {
		for _, src := range sourcesFor(t) {
			need[src] = true
		}
	}

	f := s.fetch(ctx, need)
	now := s.now()

	out := make(map[models.Target]Observation, len(targets))
	for _, t := range targets {
		if err := f.firstErr(sourcesFor(t)); err != nil {
			out[t] = Observation{Err: err}
			continue
		}
		out[t] = s.observe(t, f, now)
	}
	return out
}

func (s *Sampler) fetch(ctx context.Context, need map[source]bool) *fetched {
	f := &fetched{errs: map[source]error{}}

	type item struct {
		src source
		val interface{}
		err error
	}
	ch := make(chan item, len(need))
	var wg sync.WaitGroup
	start := time.Now()

	call := func(src source, fn func() (interface{}, error)) {
		if !need[src] {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := fn()
			ch <- item{src, v, err}
		}()
	}

	call(srcPrice, func() (interface{}, error) { return s.prices.GetPriceSeries(ctx, s.cfg.PriceWindow) })
	call(srcFlows, func() (interface{}, error) { return s.ds.GetExchangeFlows(ctx, s.cfg.FlowDays) })
	call(srcMempool, func() (interface{}, error) { return s.ds.GetMempoolSnapshot(ctx) })
	call(srcLargeTx, func() (interface{}, error) {
		return s.ds.GetLargeTransactions(ctx, s.cfg.LargeTxMinAmount, s.cfg.LargeTxDepth)
	})
	call(srcHolders, func() (interface{}, error) { return s.ds.GetTopHolders(ctx) })

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			f.errs[it.src] = fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, it.src, it.err)
			s.metrics.RecordError("datasource")
			s.log.Warn("sampler.fetch failed", logger.String("source", string(it.src)), logger.Error(it.err))
			continue
		}
		switch it.src {
		case srcPrice:
			pts := it.val.([]models.PricePoint)
			sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })
			f.prices = make([]float64, len(pts))
			for i, p := range pts {
				f.prices[i] = p.Price
			}
		case srcFlows:
			flows := it.val.([]models.ExchangeFlow)
			sort.SliceStable(flows, func(i, j int) bool { return flows[i].Timestamp.Before(flows[j].Timestamp) })
			f.flows = make([]float64, len(flows))
			for i, x := range flows {
				f.flows[i] = x.Netflow
			}
		case srcMempool:
			f.mempool = it.val.(models.MempoolSnapshot)
		case srcLargeTx:
			f.largeTx = it.val.([]models.LargeTransaction)
		case srcHolders:
			f.holders = it.val.([]models.Holder)
		}
	}
	s.metrics.RecordLatency("sampler.fetch", time.Since(start).Seconds())
	return f
}

func (f *fetched) firstErr(srcs []source) error {
	for _, src := range srcs {
		if err := f.errs[src]; err != nil {
			return err
		}
	}
	return nil
}

func (s *Sampler) observe(t models.Target, f *fetched, now time.Time) Observation {
	switch t {
	case models.TargetPrice:
		return fromSeries(f.prices)
	case models.TargetExchangeNetflow:
		return fromSeries(f.flows)
	case models.TargetCorrelationSignal:
		return fromSeries(RollingCorrelation(f.prices, f.flows, s.cfg.CorrelationWindow))
	case models.TargetTxVolume:
		return s.accumulate(t, float64(f.mempool.Count), now)
	case models.TargetLargeTx:
		return s.accumulate(t, float64(len(f.largeTx)), now)
	case models.TargetWhaleMovement:
		total := 0.0
		for _, tx := range f.largeTx {
			total += tx.Amount
		}
		return s.accumulate(t, total, now)
	case models.TargetHolderTrend:
		total := 0.0
		for _, h := range f.holders {
			total += h.Balance
		}
		return s.accumulate(t, total, now)
	case models.TargetWhaleAlertFreq:
		n := 0
		if s.alerts != nil {
			n = s.alerts.CountSince(now.Add(-time.Hour))
		}
		return s.accumulate(t, float64(n), now)
	default:
		return Observation{Err: fmt.Errorf("%w: unknown target %q", models.ErrDataUnavailable, t)}
	}
}

func fromSeries(series []float64) Observation {
	if len(series) == 0 {
		return Observation{Err: fmt.Errorf("%w: empty series", models.ErrDataUnavailable)}
	}
	return Observation{Series: series, Current: series[len(series)-1]}
}

// accumulate appends v to the target history. Samples closer than MinSpacing to
// the previous one replace it, keeping the series roughly evenly spaced.
func (s *Sampler) accumulate(t models.Target, v float64, now time.Time) Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[t]
	if n := len(h); n > 0 && now.Sub(h[n-1].at) < s.cfg.MinSpacing {
		h[n-1] = timedSample{at: h[n-1].at, value: v}
	} else {
		h = append(h, timedSample{at: now, value: v})
	}
	if len(h) > s.cfg.HistoryCap {
		h = h[len(h)-s.cfg.HistoryCap:]
	}
	s.history[t] = h

	series := make([]float64, len(h))
	for i, x := range h {
		series[i] = x.value
	}
	return Observation{Series: series, Current: v}
}

// HistoryLen reports how many accumulated samples a target has.
func (s *Sampler) HistoryLen(t models.Target) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history[t])
}

// RollingCorrelation is the Pearson correlation of the tail-aligned a and b over
// a trailing window. The result has min(len(a), len(b)) - window + 1 values;
// windows with zero variance read 0.
func RollingCorrelation(a, b []float64, window int) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if window < 2 || n < window {
		return nil
	}
	a, b = a[len(a)-n:], b[len(b)-n:]

	out := make([]float64, 0, n-window+1)
	for end := window; end <= n; end++ {
		out = append(out, pearson(a[end-window:end], b[end-window:end]))
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	return math.Max(-1, math.Min(1, r))
}
