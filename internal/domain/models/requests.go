package models

// Requests for engine HTTP endpoints. Defined in domain for consistency and reuse.

type PredictionListRequest struct {
	Target    string `query:"target" json:"target" validate:"omitempty,oneof=price tx_volume whale_movement large_tx holder_trend correlation_signal exchange_netflow whale_alert_freq"`
	Timeframe string `query:"timeframe" json:"timeframe" validate:"omitempty,oneof=15m 1h 4h 24h"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type GenerateRequest struct {
	Target    string `json:"target" validate:"omitempty,oneof=price tx_volume whale_movement large_tx holder_trend correlation_signal exchange_netflow whale_alert_freq"`
	Timeframe string `json:"timeframe" validate:"omitempty,oneof=15m 1h 4h 24h"`
}

type AccuracyRequest struct {
	Target string `query:"target" json:"target" validate:"omitempty,oneof=price tx_volume whale_movement large_tx holder_trend correlation_signal exchange_netflow whale_alert_freq"`
}

type AlertListRequest struct {
	Limit      int  `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=200"`
	UnreadOnly bool `query:"unread" json:"unread"`
}

type RuleToggleRequest struct {
	Name    string `param:"name" validate:"required"`
	Enabled *bool  `json:"enabled" validate:"required"`
}
