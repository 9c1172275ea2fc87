// Package signals turns indicator outputs into weighted directional signals and
// folds them into a single decision.
package signals

import (
	"math"

	"ChainSignal/internal/domain/models"
)

// Confidence bounds. Never claim near-certainty or near-randomness.
const (
	MinConfidence = 15
	MaxConfidence = 85

	hysteresis     = 1.2
	confidenceSpan = 70.0
	changeScale    = 0.5
)

// Aggregate folds signals into one direction, percent change and confidence.
// current is only used to derive PredictedValue.
func Aggregate(sigs []models.Signal, current float64) models.AggregateResult {
	if len(sigs) == 0 {
		return models.AggregateResult{
			Direction:      models.DirectionNeutral,
			Confidence:     MinConfidence,
			PredictedValue: current,
		}
	}

	var up, down, total float64
	for _, s := range sigs {
		total += s.Weight
		switch s.Direction {
		case models.DirectionUp:
			up += s.Weight
		case models.DirectionDown:
			down += s.Weight
		}
	}

	dir := models.DirectionNeutral
	switch {
	case up > down*hysteresis:
		dir = models.DirectionUp
	case down > up*hysteresis:
		dir = models.DirectionDown
	}

	agreement := 0.0
	if total > 0 {
		agreement = math.Max(up, down) / total
	}

	change := 0.0
	switch dir {
	case models.DirectionUp:
		change = (agreement - 0.5) * 2 * changeScale
	case models.DirectionDown:
		change = -(agreement - 0.5) * 2 * changeScale
	}

	return models.AggregateResult{
		Direction:      dir,
		Change:         change,
		Confidence:     clampConfidence(agreement*confidenceSpan + MinConfidence),
		PredictedValue: current * (1 + change/100),
	}
}

func clampConfidence(v float64) int {
	if math.IsNaN(v) {
		return MinConfidence
	}
	c := int(math.Round(v))
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}
