package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/internal/handler/api"
	internalrepo "ChainSignal/internal/repository"
	"ChainSignal/internal/service/chaindata"
	"ChainSignal/internal/service/ratelimit"
	"ChainSignal/internal/usecase"
	"ChainSignal/pkg/cache"
	pkgch "ChainSignal/pkg/clickhouse"
	"ChainSignal/pkg/config"
	xhttp "ChainSignal/pkg/http"
	pkgkafka "ChainSignal/pkg/kafka"
	"ChainSignal/pkg/logger"
	"ChainSignal/pkg/metrics"
	"ChainSignal/pkg/scheduler"
	"ChainSignal/pkg/server"
)

// Upstream calls are throttled per upstream host.
const (
	upstreamRPS   = 5
	upstreamBurst = 10
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogDigest batches warnings and errors to the logs topic. It is nil
// without a producer or a logs topic.
func ProvideLogDigest(cfg *config.Config, producer *pkgkafka.Producer) *logger.Digest {
	if producer == nil || cfg.Kafka.LogsTopic == "" {
		return nil
	}
	return logger.NewDigest(logger.DigestConfig{
		Interval:  30 * time.Second,
		Topic:     cfg.Kafka.LogsTopic,
		Publisher: producer,
	})
}

// ProvideLogger builds the application logger.
func ProvideLogger(cfg *config.Config, digest *logger.Digest) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if digest != nil {
		l.AttachDigest(digest)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return domrepo.NopMetrics{}
	}
	return metrics.New(nil)
}

// ProvideRedisClient connects to Redis when the redis storage backend is selected.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Storage.Backend != "redis" {
		return nil, nil
	}
	client, err := cache.NewRedisClient(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideListStore selects where the prediction and alert lists persist.
func ProvideListStore(cfg *config.Config, rc *redis.Client) domrepo.ListStore {
	if rc != nil {
		return internalrepo.NewRedisListStore(rc, cfg.Redis.Prefix)
	}
	return internalrepo.NewMemoryListStore()
}

// ProvideCache builds the lookup cache: in-process, fronting Redis when available.
func ProvideCache(cfg *config.Config, rc *redis.Client) cache.Service {
	if rc != nil {
		return cache.NewLayeredCache(cache.NewRedisCache(rc, cfg.Redis.Prefix+":cache"), cfg.Cache.MemorySize, time.Minute)
	}
	return cache.NewMemoryCache(
		cache.WithMemoryMaxSize(cfg.Cache.MemorySize),
		cache.WithMemoryDefaultTTL(cfg.Cache.AddressTTL),
	)
}

// ProvideClickHouseClient creates a ClickHouse client and its tables, or nil
// when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	stmts := append(append([]string{}, internalrepo.PriceSchema...), internalrepo.ArchiveSchema...)
	if err := client.InitSchema(ctx, stmts...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideDataSource creates the HTTP data source client.
func ProvideDataSource(cfg *config.Config, c cache.Service, log *logger.Logger, m domrepo.Metrics) *chaindata.Client {
	return chaindata.New(chaindata.Config{
		MarketURL:  cfg.DataSource.MarketURL,
		MempoolURL: cfg.DataSource.MempoolURL,
		IndexerURL: cfg.DataSource.IndexerURL,
		Symbol:     cfg.DataSource.Symbol,
		Interval:   cfg.DataSource.Interval,
		Timeout:    cfg.DataSource.Timeout,
	},
		chaindata.WithAddressCache(c, cfg.Cache.AddressTTL),
		chaindata.WithLimiter(ratelimit.New(upstreamRPS, upstreamBurst)),
		chaindata.WithLogger(log.With(logger.String("component", "datasource"))),
		chaindata.WithMetrics(m),
	)
}

// ProvideAlertFeed creates the alert list and toast view.
func ProvideAlertFeed(cfg *config.Config, store domrepo.ListStore, log *logger.Logger, m domrepo.Metrics) *usecase.AlertFeed {
	return usecase.NewAlertFeed(store, cfg.Alerts.HistoryCap,
		usecase.WithToasts(cfg.Alerts.ToastMax, cfg.Alerts.ToastTTL),
		usecase.WithFeedLogger(log.With(logger.String("component", "alerts"))),
		usecase.WithFeedMetrics(m),
	)
}

// ProvideSampler builds the prediction inputs. Prices come through ClickHouse
// when it is enabled.
func ProvideSampler(
	cfg *config.Config,
	ds *chaindata.Client,
	feed *usecase.AlertFeed,
	ch *pkgch.Client,
	log *logger.Logger,
	m domrepo.Metrics,
) *usecase.Sampler {
	opts := []usecase.SamplerOption{
		usecase.WithAlertCounter(feed),
		usecase.WithSamplerLogger(log.With(logger.String("component", "sampler"))),
		usecase.WithSamplerMetrics(m),
	}
	if ch != nil {
		opts = append(opts, usecase.WithPriceSource(
			internalrepo.NewClickHousePriceStore(ch.DB(), cfg.ClickHouse.Symbol, cfg.ClickHouse.Interval, ds, log),
		))
	}
	return usecase.NewSampler(ds, usecase.SamplerConfig{
		PriceWindow:      cfg.Prediction.PriceWindow,
		FlowDays:         cfg.Prediction.FlowDays,
		LargeTxMinAmount: cfg.Alerts.LargeTxMinAmount,
		LargeTxDepth:     cfg.Alerts.LargeTxDepth,
		HistoryCap:       cfg.Prediction.SampleHistoryCap,
		MinSpacing:       cfg.Prediction.SampleSpacing,
	}, opts...)
}

// ProvidePredictionManager creates the prediction engine. Resolved predictions
// are archived to ClickHouse when it is enabled.
func ProvidePredictionManager(
	cfg *config.Config,
	s *usecase.Sampler,
	store domrepo.ListStore,
	ch *pkgch.Client,
	log *logger.Logger,
	m domrepo.Metrics,
) *usecase.PredictionManager {
	opts := []usecase.PredictionOption{
		usecase.WithPredictionLogger(log.With(logger.String("component", "predictions"))),
		usecase.WithPredictionMetrics(m),
	}
	if ch != nil {
		opts = append(opts, usecase.WithPredictionArchive(internalrepo.NewClickHousePredictionArchive(ch.DB())))
	}
	return usecase.NewPredictionManager(s, store, usecase.PredictionConfig{
		Targets:    parseTargets(cfg.Prediction.Targets),
		Timeframes: parseTimeframes(cfg.Prediction.Timeframes),
		HistoryCap: cfg.Prediction.HistoryCap,
	}, opts...)
}

// ProvideAlertEngine creates the rule engine with the standard rule set.
func ProvideAlertEngine(
	cfg *config.Config,
	ds *chaindata.Client,
	feed *usecase.AlertFeed,
	log *logger.Logger,
	m domrepo.Metrics,
) *usecase.AlertEngine {
	return usecase.NewAlertEngine(ds, feed, usecase.DefaultRules(ds), usecase.AlertEngineConfig{
		LargeTxMinAmount: cfg.Alerts.LargeTxMinAmount,
		LargeTxDepth:     cfg.Alerts.LargeTxDepth,
		Disabled:         cfg.Alerts.Disabled,
	},
		usecase.WithEngineLogger(log.With(logger.String("component", "rules"))),
		usecase.WithEngineMetrics(m),
	)
}

func ProvideScheduler(log *logger.Logger) *scheduler.Scheduler {
	return scheduler.New(scheduler.WithLogger(log.With(logger.String("component", "scheduler"))))
}

// ProvideHandlers collects every HTTP route group.
func ProvideHandlers(
	cfg *config.Config,
	log *logger.Logger,
	pm *usecase.PredictionManager,
	feed *usecase.AlertFeed,
	engine *usecase.AlertEngine,
) []xhttp.Handler {
	limiter := ratelimit.New(cfg.Server.GenerateRPS, cfg.Server.GenerateBurst)
	return []xhttp.Handler{
		api.NewPredictionsEchoHandler(log, pm, limiter),
		api.NewAlertsEchoHandler(log, feed, engine),
		api.NewAlertStreamHandler(log, feed),
	}
}

func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, handlers,
		xhttp.WithAddress("0.0.0.0", cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server and hands it every resource to
// release on shutdown.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	sched *scheduler.Scheduler,
	pm *usecase.PredictionManager,
	feed *usecase.AlertFeed,
	engine *usecase.AlertEngine,
	srv *xhttp.Server,
	producer *pkgkafka.Producer,
	digest *logger.Digest,
	ch *pkgch.Client,
	rc *redis.Client,
	c cache.Service,
) *server.App {
	var opts []server.Option
	if producer != nil {
		opts = append(opts,
			server.WithAlertPublisher(internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertsTopic)),
			server.WithCloser("kafka", producer.Close),
		)
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc.Close))
	}
	opts = append(opts, server.WithCloser("cache", c.Close))
	if digest != nil {
		opts = append(opts, server.WithCloser("log digest", func() error {
			digest.Close()
			return nil
		}))
	}
	return server.New(cfg, log, sched, pm, feed, engine, srv, opts...)
}

func parseTargets(in []string) []models.Target {
	out := make([]models.Target, 0, len(in))
	for _, s := range in {
		out = append(out, models.Target(s))
	}
	return out
}

func parseTimeframes(in []string) []models.Timeframe {
	out := make([]models.Timeframe, 0, len(in))
	for _, s := range in {
		out = append(out, models.Timeframe(s))
	}
	return out
}
