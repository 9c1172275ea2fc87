package repository

import (
	"context"
	"encoding/json"
	"fmt"
)

// Storage keys owned by the engine. Each key has exactly one writer.
const (
	KeyPredictions = "predictions"
	KeyAlerts      = "alerts"
)

// ListStore is a passive capped-list key/value surface. Records are stored
// most-recent-first; SaveList keeps at most cap of them.
type ListStore interface {
	LoadList(ctx context.Context, key string) ([]json.RawMessage, error)
	SaveList(ctx context.Context, key string, records []json.RawMessage, cap int) error
}

// LoadRecords loads a list and decodes it into T. Undecodable records are skipped.
func LoadRecords[T any](ctx context.Context, s ListStore, key string) ([]T, error) {
	raw, err := s.LoadList(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// SaveRecords encodes records (most-recent-first) and persists at most cap of them.
func SaveRecords[T any](ctx context.Context, s ListStore, key string, records []T, cap int) error {
	if cap > 0 && len(records) > cap {
		records = records[:cap]
	}
	raw := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", key, err)
		}
		raw = append(raw, b)
	}
	return s.SaveList(ctx, key, raw, cap)
}
