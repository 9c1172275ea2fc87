package chaindata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"ChainSignal/internal/domain/models"
	"ChainSignal/pkg/util"
)

// Binance returns klines as positional arrays:
// [openTime, open, high, low, close, volume, closeTime, ...].
type kline []json.RawMessage

func (k kline) point() (models.PricePoint, error) {
	if len(k) < 5 {
		return models.PricePoint{}, fmt.Errorf("short kline: %d fields", len(k))
	}
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return models.PricePoint{}, fmt.Errorf("kline open time: %w", err)
	}
	var closeStr string
	if err := json.Unmarshal(k[4], &closeStr); err != nil {
		return models.PricePoint{}, fmt.Errorf("kline close: %w", err)
	}
	price, err := strconv.ParseFloat(closeStr, 64)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("kline close: %w", err)
	}
	return models.PricePoint{Time: util.FromUnix(openTime), Price: price}, nil
}

// GetPriceSeries returns the latest window closes, oldest first.
func (c *Client) GetPriceSeries(ctx context.Context, window int) ([]models.PricePoint, error) {
	q := url.Values{
		"symbol":   {c.cfg.Symbol},
		"interval": {c.cfg.Interval},
		"limit":    {strconv.Itoa(window)},
	}
	var raw []kline
	if err := c.get(ctx, "market", c.market, "/api/v3/klines", q, &raw); err != nil {
		return nil, err
	}
	out := make([]models.PricePoint, 0, len(raw))
	for _, k := range raw {
		p, err := k.point()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, err)
		}
		out = append(out, p)
	}
	return out, nil
}

type ticker24h struct {
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

func (c *Client) GetCurrentSnapshot(ctx context.Context) (models.MarketSnapshot, error) {
	var t ticker24h
	if err := c.get(ctx, "market", c.market, "/api/v3/ticker/24hr", url.Values{"symbol": {c.cfg.Symbol}}, &t); err != nil {
		return models.MarketSnapshot{}, err
	}
	price := util.ParseFloatDefault(t.LastPrice, 0)
	if price <= 0 {
		return models.MarketSnapshot{}, fmt.Errorf("%w: ticker without price", models.ErrDataUnavailable)
	}
	ts := time.Now().UTC()
	if t.CloseTime > 0 {
		ts = util.FromUnix(t.CloseTime)
	}
	return models.MarketSnapshot{
		Price:            price,
		ChangePercent24h: util.ParseFloatDefault(t.PriceChangePercent, 0),
		Volume24h:        util.ParseFloatDefault(t.QuoteVolume, 0),
		Timestamp:        ts,
	}, nil
}
