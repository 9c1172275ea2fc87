package repository

import (
	"context"

	"ChainSignal/internal/domain/models"
)

// DataSource is the external market/on-chain collaborator. Every call may fail;
// callers treat a failure as "no data this cycle".
type DataSource interface {
	GetPriceSeries(ctx context.Context, window int) ([]models.PricePoint, error)
	GetCurrentSnapshot(ctx context.Context) (models.MarketSnapshot, error)
	GetMempoolSnapshot(ctx context.Context) (models.MempoolSnapshot, error)
	GetLargeTransactions(ctx context.Context, minAmount float64, depth int) ([]models.LargeTransaction, error)
	GetTopHolders(ctx context.Context) ([]models.Holder, error)
	GetAddressLastActivity(ctx context.Context, address string) (models.AddressActivity, error)
	GetExchangeFlows(ctx context.Context, days int) ([]models.ExchangeFlow, error)
}

// PriceSeriesSource can replace the price series of a DataSource (e.g. a candles table).
type PriceSeriesSource interface {
	GetPriceSeries(ctx context.Context, window int) ([]models.PricePoint, error)
}

// AlertPublisher forwards new alerts to an external sink.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, a models.Alert) error
	Close() error
}

// PredictionArchive keeps resolved predictions beyond the capped list.
type PredictionArchive interface {
	ArchiveResolved(ctx context.Context, preds []models.Prediction) error
}

type Metrics interface {
	RecordPredictionGenerated(target, timeframe string, confidence int)
	RecordPredictionResolved(target string, accurate bool)
	RecordAlert(category, severity string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordPredictionGenerated(string, string, int) {}
func (NopMetrics) RecordPredictionResolved(string, bool)         {}
func (NopMetrics) RecordAlert(string, string)                    {}
func (NopMetrics) RecordError(string)                            {}
func (NopMetrics) RecordLatency(string, float64)                 {}

var _ Metrics = NopMetrics{}
