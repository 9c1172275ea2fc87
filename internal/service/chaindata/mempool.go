package chaindata

import (
	"context"

	"ChainSignal/internal/domain/models"
)

type mempoolStats struct {
	Count int `json:"count"`
}

type recommendedFees struct {
	FastestFee  float64 `json:"fastestFee"`
	HalfHourFee float64 `json:"halfHourFee"`
	HourFee     float64 `json:"hourFee"`
	MinimumFee  float64 `json:"minimumFee"`
}

// GetMempoolSnapshot combines the pending count with recommended fees.
func (c *Client) GetMempoolSnapshot(ctx context.Context) (models.MempoolSnapshot, error) {
	var stats mempoolStats
	if err := c.get(ctx, "mempool", c.mempool, "/api/mempool", nil, &stats); err != nil {
		return models.MempoolSnapshot{}, err
	}
	var fees recommendedFees
	if err := c.get(ctx, "mempool", c.mempool, "/api/v1/fees/recommended", nil, &fees); err != nil {
		return models.MempoolSnapshot{}, err
	}
	return models.MempoolSnapshot{
		Count:       stats.Count,
		FastestFee:  fees.FastestFee,
		HalfHourFee: fees.HalfHourFee,
		HourFee:     fees.HourFee,
		MinimumFee:  fees.MinimumFee,
	}, nil
}
