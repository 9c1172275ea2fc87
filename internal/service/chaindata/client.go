// Package chaindata implements the engine's DataSource over HTTP: a
// Binance-style market API, a mempool.space-style fee API and an on-chain
// indexer for transfers, holders and exchange flows.
package chaindata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/internal/service/ratelimit"
	"ChainSignal/pkg/cache"
	pkghttp "ChainSignal/pkg/http"
	"ChainSignal/pkg/logger"
)

var errIndexerNotConfigured = errors.New("indexer url not configured")

type Config struct {
	MarketURL  string
	MempoolURL string
	IndexerURL string
	Symbol     string
	Interval   string
	Timeout    time.Duration
}

type Option func(*Client)

// WithAddressCache caches address activity lookups for ttl.
func WithAddressCache(c cache.Service, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// WithLimiter throttles outgoing calls per upstream.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// Client implements domain.repository.DataSource.
type Client struct {
	cfg      Config
	market   *pkghttp.Client
	mempool  *pkghttp.Client
	indexer  *pkghttp.Client
	cache    cache.Service
	cacheTTL time.Duration
	limiter  *ratelimit.Limiter
	log      *logger.Logger
	metrics  domrepo.Metrics
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:      cfg,
		market:   pkghttp.NewClient(cfg.MarketURL, pkghttp.WithTimeout(cfg.Timeout)),
		mempool:  pkghttp.NewClient(cfg.MempoolURL, pkghttp.WithTimeout(cfg.Timeout)),
		cacheTTL: 10 * time.Minute,
		log:      logger.Nop(),
		metrics:  domrepo.NopMetrics{},
	}
	if cfg.IndexerURL != "" {
		c.indexer = pkghttp.NewClient(cfg.IndexerURL, pkghttp.WithTimeout(cfg.Timeout))
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// get runs one upstream call with throttling, timing and error classification.
func (c *Client) get(ctx context.Context, upstream string, hc *pkghttp.Client, path string, q url.Values, dest interface{}) error {
	if hc == nil {
		return fmt.Errorf("%w: %s: %v", models.ErrDataUnavailable, upstream, errIndexerNotConfigured)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, upstream); err != nil {
			return fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
		}
	}
	start := time.Now()
	err := hc.GetJSON(ctx, path, q, dest)
	c.metrics.RecordLatency("datasource."+upstream, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError("datasource")
		c.log.Debug("datasource call failed",
			logger.String("upstream", upstream),
			logger.String("path", path),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %v", models.ErrDataUnavailable, upstream, path, err)
	}
	return nil
}

var _ domrepo.DataSource = (*Client)(nil)
