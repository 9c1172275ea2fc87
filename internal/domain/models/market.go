package models

import "time"

// PricePoint is one sample of a price series.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// MarketSnapshot is the latest ticker view.
type MarketSnapshot struct {
	Price            float64   `json:"price"`
	ChangePercent24h float64   `json:"change_percent_24h"`
	Volume24h        float64   `json:"volume_24h"`
	Timestamp        time.Time `json:"timestamp"`
}

// MempoolSnapshot holds the pending transaction count and fee estimates (sat/vB).
type MempoolSnapshot struct {
	Count       int     `json:"count"`
	FastestFee  float64 `json:"fastest_fee"`
	HalfHourFee float64 `json:"half_hour_fee"`
	HourFee     float64 `json:"hour_fee"`
	MinimumFee  float64 `json:"minimum_fee"`
}

// FlowKind classifies a large transaction relative to exchanges.
type FlowKind string

const (
	FlowExchangeDeposit    FlowKind = "exchange_deposit"
	FlowExchangeWithdrawal FlowKind = "exchange_withdrawal"
	FlowTransfer           FlowKind = "transfer"
)

// LargeTransaction is an on-chain transfer above the sampling threshold.
type LargeTransaction struct {
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    float64   `json:"amount"`
	Flow      FlowKind  `json:"flow"`
	Exchange  string    `json:"exchange,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Holder is one entry of the top holders ranking.
type Holder struct {
	Rank    int     `json:"rank"`
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
	Label   string  `json:"label,omitempty"`
}

// AddressActivity is the last time an address moved funds.
type AddressActivity struct {
	Address      string    `json:"address"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ExchangeFlow is one daily bucket of exchange in/out volume.
type ExchangeFlow struct {
	Timestamp time.Time `json:"timestamp"`
	Inflow    float64   `json:"inflow"`
	Outflow   float64   `json:"outflow"`
	Netflow   float64   `json:"netflow"`
}
