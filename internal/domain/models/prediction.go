package models

import (
	"fmt"
	"time"
)

// Target is the metric a prediction forecasts.
type Target string

const (
	TargetPrice             Target = "price"
	TargetTxVolume          Target = "tx_volume"
	TargetWhaleMovement     Target = "whale_movement"
	TargetLargeTx           Target = "large_tx"
	TargetHolderTrend       Target = "holder_trend"
	TargetCorrelationSignal Target = "correlation_signal"
	TargetExchangeNetflow   Target = "exchange_netflow"
	TargetWhaleAlertFreq    Target = "whale_alert_freq"
)

// AllTargets lists every supported target in display order.
func AllTargets() []Target {
	return []Target{
		TargetPrice,
		TargetTxVolume,
		TargetWhaleMovement,
		TargetLargeTx,
		TargetHolderTrend,
		TargetCorrelationSignal,
		TargetExchangeNetflow,
		TargetWhaleAlertFreq,
	}
}

// IsValidTarget returns true if t is a supported target.
func IsValidTarget(t Target) bool {
	for _, x := range AllTargets() {
		if x == t {
			return true
		}
	}
	return false
}

// Timeframe is the prediction horizon.
type Timeframe string

const (
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF24h Timeframe = "24h"
)

// AllTimeframes lists every supported horizon, shortest first.
func AllTimeframes() []Timeframe {
	return []Timeframe{TF15m, TF1h, TF4h, TF24h}
}

// Duration returns the horizon length. Unknown timeframes return 0.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF24h:
		return 24 * time.Hour
	default:
		return 0
	}
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	return tf.Duration() > 0
}

// Slot is the (target, timeframe) pair owning at most one active prediction.
type Slot struct {
	Target    Target    `json:"target"`
	Timeframe Timeframe `json:"timeframe"`
}

func (s Slot) String() string { return string(s.Target) + ":" + string(s.Timeframe) }

// Explanation is the audit trail attached to a resolved prediction.
type Explanation struct {
	Summary      string   `json:"summary"`
	Reasons      []string `json:"reasons"`
	KeyFactor    string   `json:"key_factor"`
	Confirmed    []string `json:"confirmed,omitempty"`
	Contradicted []string `json:"contradicted,omitempty"`
}

// Prediction is a directional forecast for one slot.
type Prediction struct {
	ID              string       `json:"id"`
	CreatedAt       time.Time    `json:"created_at"`
	TargetTime      time.Time    `json:"target_time"`
	Target          Target       `json:"target"`
	Timeframe       Timeframe    `json:"timeframe"`
	Direction       Direction    `json:"direction"`
	CurrentValue    float64      `json:"current_value"`
	PredictedValue  float64      `json:"predicted_value"`
	PredictedChange float64      `json:"predicted_change"`
	Confidence      int          `json:"confidence"`
	Signals         []Signal     `json:"signals"`
	Reasons         []Reason     `json:"reasons,omitempty"`
	Resolved        bool         `json:"resolved"`
	Superseded      bool         `json:"superseded,omitempty"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	ActualValue     float64      `json:"actual_value,omitempty"`
	ActualChange    float64      `json:"actual_change,omitempty"`
	Accurate        bool         `json:"accurate,omitempty"`
	Error           float64      `json:"error,omitempty"`
	Resolution      *Explanation `json:"resolution,omitempty"`
}

// PredictionID builds the identity of a prediction.
func PredictionID(target Target, tf Timeframe, createdAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d", target, tf, createdAt.UnixMilli())
}

// Slot returns the slot the prediction belongs to.
func (p *Prediction) Slot() Slot { return Slot{Target: p.Target, Timeframe: p.Timeframe} }

// Expired reports whether the horizon has elapsed.
func (p *Prediction) Expired(now time.Time) bool { return !p.TargetTime.After(now) }

// Open reports whether the prediction still awaits resolution. A prediction
// replaced by a newer one for its slot is never resolved.
func (p *Prediction) Open() bool { return !p.Resolved && !p.Superseded }

// Pending reports whether the prediction is still counting down.
func (p *Prediction) Pending(now time.Time) bool { return p.Open() && !p.Expired(now) }

// PredictionAccuracy is derived on demand from resolved predictions.
type PredictionAccuracy struct {
	Target             Target  `json:"target,omitempty"`
	TotalPredictions   int     `json:"total_predictions"`
	CorrectPredictions int     `json:"correct_predictions"`
	Accuracy           float64 `json:"accuracy"`
	AvgError           float64 `json:"avg_error"`
	Last24hAccuracy    float64 `json:"last_24h_accuracy"`
}
