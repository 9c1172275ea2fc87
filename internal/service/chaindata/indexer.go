package chaindata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"ChainSignal/internal/domain/models"
	"ChainSignal/pkg/cache"
	"ChainSignal/pkg/util"
)

// flexTime accepts RFC3339 strings or unix seconds/milliseconds.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("time: %s", b)
		}
		*t = flexTime(util.FromUnix(n))
		return nil
	}
	parsed, ok := util.ParseTime(s)
	if !ok {
		return fmt.Errorf("time: %q", s)
	}
	*t = flexTime(parsed.UTC())
	return nil
}

type indexerTx struct {
	Hash      string   `json:"hash"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    float64  `json:"amount"`
	Flow      string   `json:"flow"`
	Exchange  string   `json:"exchange"`
	Timestamp flexTime `json:"timestamp"`
}

func flowKind(s string) models.FlowKind {
	switch models.FlowKind(s) {
	case models.FlowExchangeDeposit, models.FlowExchangeWithdrawal:
		return models.FlowKind(s)
	}
	return models.FlowTransfer
}

// GetLargeTransactions returns transfers of at least minAmount, newest first.
func (c *Client) GetLargeTransactions(ctx context.Context, minAmount float64, depth int) ([]models.LargeTransaction, error) {
	q := url.Values{
		"min_amount": {strconv.FormatFloat(minAmount, 'f', -1, 64)},
		"limit":      {strconv.Itoa(depth)},
	}
	var raw []indexerTx
	if err := c.get(ctx, "indexer", c.indexer, "/v1/transactions/large", q, &raw); err != nil {
		return nil, err
	}
	out := make([]models.LargeTransaction, 0, len(raw))
	for _, r := range raw {
		if r.Amount < minAmount {
			continue
		}
		out = append(out, models.LargeTransaction{
			Hash:      r.Hash,
			From:      r.From,
			To:        r.To,
			Amount:    r.Amount,
			Flow:      flowKind(r.Flow),
			Exchange:  r.Exchange,
			Timestamp: time.Time(r.Timestamp),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// GetTopHolders returns the ranking sorted by rank.
func (c *Client) GetTopHolders(ctx context.Context) ([]models.Holder, error) {
	var out []models.Holder
	if err := c.get(ctx, "indexer", c.indexer, "/v1/holders/top", url.Values{"limit": {"100"}}, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

type indexerActivity struct {
	Address      string   `json:"address"`
	LastActiveAt flexTime `json:"last_active_at"`
}

// GetAddressLastActivity is served through the address cache when one is set.
func (c *Client) GetAddressLastActivity(ctx context.Context, address string) (models.AddressActivity, error) {
	return cache.GetOrLoad(ctx, c.cache, cache.Key("address", address), c.cacheTTL,
		func(ctx context.Context) (models.AddressActivity, error) {
			var raw indexerActivity
			path := "/v1/addresses/" + url.PathEscape(address) + "/activity"
			if err := c.get(ctx, "indexer", c.indexer, path, nil, &raw); err != nil {
				return models.AddressActivity{}, err
			}
			return models.AddressActivity{Address: address, LastActiveAt: time.Time(raw.LastActiveAt)}, nil
		})
}

type indexerFlow struct {
	Timestamp flexTime `json:"timestamp"`
	Inflow    float64  `json:"inflow"`
	Outflow   float64  `json:"outflow"`
}

// GetExchangeFlows returns daily buckets oldest first. Netflow is inflow minus outflow.
func (c *Client) GetExchangeFlows(ctx context.Context, days int) ([]models.ExchangeFlow, error) {
	var raw []indexerFlow
	if err := c.get(ctx, "indexer", c.indexer, "/v1/exchange-flows", url.Values{"days": {strconv.Itoa(days)}}, &raw); err != nil {
		return nil, err
	}
	out := make([]models.ExchangeFlow, 0, len(raw))
	for _, r := range raw {
		out = append(out, models.ExchangeFlow{
			Timestamp: time.Time(r.Timestamp),
			Inflow:    r.Inflow,
			Outflow:   r.Outflow,
			Netflow:   r.Inflow - r.Outflow,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
