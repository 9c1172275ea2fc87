package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
)

// ArchiveSchema creates the resolved prediction archive.
var ArchiveSchema = []string{
	`CREATE DATABASE IF NOT EXISTS chainsignal`,
	`CREATE TABLE IF NOT EXISTS chainsignal.prediction_archive (
		id               String,
		target           LowCardinality(String),
		timeframe        LowCardinality(String),
		created_at       DateTime64(3, 'UTC'),
		target_time      DateTime64(3, 'UTC'),
		resolved_at      DateTime64(3, 'UTC'),
		direction        LowCardinality(String),
		confidence       UInt8,
		current_value    Float64,
		predicted_change Float64,
		actual_value     Float64,
		actual_change    Float64,
		accurate         Bool,
		error            Float64,
		signals          String
	) ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (target, timeframe, created_at, id)`,
}

// ClickHousePredictionArchive stores every resolved prediction, beyond the
// capped in-memory history.
type ClickHousePredictionArchive struct {
	db *sql.DB
}

func NewClickHousePredictionArchive(db *sql.DB) *ClickHousePredictionArchive {
	return &ClickHousePredictionArchive{db: db}
}

func (a *ClickHousePredictionArchive) ArchiveResolved(ctx context.Context, preds []models.Prediction) error {
	rows := archivable(preds)
	if len(rows) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: archive begin: %v", models.ErrPersistence, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chainsignal.prediction_archive
		(id, target, timeframe, created_at, target_time, resolved_at, direction, confidence,
		 current_value, predicted_change, actual_value, actual_change, accurate, error, signals)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: archive prepare: %v", models.ErrPersistence, err)
	}
	defer stmt.Close()

	for _, p := range rows {
		sigs, _ := json.Marshal(p.Signals)
		if _, err := stmt.ExecContext(ctx,
			p.ID, string(p.Target), string(p.Timeframe),
			p.CreatedAt.UTC(), p.TargetTime.UTC(), p.ResolvedAt.UTC(),
			string(p.Direction), uint8(p.Confidence),
			p.CurrentValue, p.PredictedChange, p.ActualValue, p.ActualChange,
			p.Accurate, p.Error, string(sigs),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: archive insert %s: %v", models.ErrPersistence, p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: archive commit: %v", models.ErrPersistence, err)
	}
	return nil
}

// archivable keeps resolved predictions in creation order.
func archivable(preds []models.Prediction) []models.Prediction {
	out := make([]models.Prediction, 0, len(preds))
	for _, p := range preds {
		if p.Resolved && p.ResolvedAt != nil {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ domrepo.PredictionArchive = (*ClickHousePredictionArchive)(nil)
