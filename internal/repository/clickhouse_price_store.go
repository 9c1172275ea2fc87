package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/pkg/logger"
)

// PriceSchema creates the candles table read by ClickHousePriceStore.
var PriceSchema = []string{
	`CREATE DATABASE IF NOT EXISTS chainsignal`,
	`CREATE TABLE IF NOT EXISTS chainsignal.price_candles (
		symbol    LowCardinality(String),
		interval  LowCardinality(String),
		open_time DateTime64(3, 'UTC'),
		close     Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, interval, open_time)`,
}

// ClickHousePriceStore serves the price series from stored candles. When the
// table holds fewer than the requested window it backfills from the upstream
// source and stores what it fetched.
type ClickHousePriceStore struct {
	db       *sql.DB
	symbol   string
	interval string
	upstream domrepo.PriceSeriesSource
	log      *logger.Logger
}

func NewClickHousePriceStore(db *sql.DB, symbol, interval string, upstream domrepo.PriceSeriesSource, log *logger.Logger) *ClickHousePriceStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ClickHousePriceStore{db: db, symbol: symbol, interval: interval, upstream: upstream, log: log}
}

func (s *ClickHousePriceStore) GetPriceSeries(ctx context.Context, window int) ([]models.PricePoint, error) {
	start := time.Now()
	stored, err := s.latest(ctx, window)
	if err != nil {
		s.log.Warn("clickhouse price query failed", logger.String("symbol", s.symbol), logger.Error(err))
	}
	if err == nil && len(stored) >= window {
		s.log.Debug("clickhouse price series ok",
			logger.String("symbol", s.symbol),
			logger.Int("rows", len(stored)),
			logger.Duration("duration_ms", time.Since(start)),
		)
		return stored, nil
	}
	if s.upstream == nil {
		if err != nil {
			return nil, fmt.Errorf("%w: price candles: %v", models.ErrDataUnavailable, err)
		}
		return stored, nil
	}

	fresh, uerr := s.upstream.GetPriceSeries(ctx, window)
	if uerr != nil {
		if len(stored) > 0 {
			return stored, nil
		}
		return nil, uerr
	}
	if ierr := s.insert(ctx, fresh); ierr != nil {
		s.log.Warn("clickhouse price backfill failed", logger.String("symbol", s.symbol), logger.Error(ierr))
	}
	return mergeSeries(stored, fresh, window), nil
}

func (s *ClickHousePriceStore) latest(ctx context.Context, n int) ([]models.PricePoint, error) {
	const q = `
		SELECT open_time, close
		FROM chainsignal.price_candles FINAL
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, s.symbol, s.interval, n)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.PricePoint, 0, n)
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Time, &p.Price); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)
	return out, nil
}

// insert uses the driver's batch: one prepared statement per transaction.
func (s *ClickHousePriceStore) insert(ctx context.Context, pts []models.PricePoint) error {
	if len(pts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chainsignal.price_candles (symbol, interval, open_time, close)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, p := range pts {
		if _, err := stmt.ExecContext(ctx, s.symbol, s.interval, p.Time.UTC(), p.Price); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// mergeSeries unions two chronological series by timestamp, preferring fresh
// values, and keeps the latest window points.
func mergeSeries(stored, fresh []models.PricePoint, window int) []models.PricePoint {
	byTime := make(map[int64]int, len(stored)+len(fresh))
	out := make([]models.PricePoint, 0, len(stored)+len(fresh))
	for _, src := range [][]models.PricePoint{stored, fresh} {
		for _, p := range src {
			k := p.Time.UnixMilli()
			if i, ok := byTime[k]; ok {
				out[i] = p
				continue
			}
			byTime[k] = len(out)
			out = append(out, p)
		}
	}
	sortPoints(out)
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func sortPoints(pts []models.PricePoint) {
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })
}

var _ domrepo.PriceSeriesSource = (*ClickHousePriceStore)(nil)
