package usecase

import (
	"fmt"
	"math"

	"ChainSignal/internal/domain/models"
)

const (
	neutralBand       = 0.1 // |change| below this counts as flat
	smallErrorBand    = 0.5
	moderateErrorBand = 2.0
)

// Key factor labels.
const (
	KeyFactorAligned   = "signals aligned and magnitude accurate"
	KeyFactorMagnitude = "direction right, magnitude off"
	KeyFactorAgainst   = "market moved against the dominant signals"
)

// Outcome is the scored result of comparing a prediction with an actual value.
type Outcome struct {
	ActualChange float64
	Accurate     bool
	Error        float64
}

// Score computes the actual change, direction match and absolute error.
func Score(p models.Prediction, actual float64) Outcome {
	change := 0.0
	if p.CurrentValue != 0 {
		change = (actual - p.CurrentValue) / p.CurrentValue * 100
	}
	return Outcome{
		ActualChange: change,
		Accurate:     directionMatches(p.Direction, change),
		Error:        math.Abs(change - p.PredictedChange),
	}
}

func directionMatches(d models.Direction, change float64) bool {
	switch d {
	case models.DirectionUp:
		return change > 0
	case models.DirectionDown:
		return change < 0
	default:
		return math.Abs(change) < neutralBand
	}
}

func impactMatches(i models.Impact, change float64) bool {
	switch i {
	case models.ImpactBullish:
		return change > 0
	case models.ImpactBearish:
		return change < 0
	default:
		return math.Abs(change) < neutralBand
	}
}

func errorBand(e float64) string {
	switch {
	case e < smallErrorBand:
		return "small"
	case e < moderateErrorBand:
		return "moderate"
	default:
		return "large"
	}
}

// Explain builds the audit trail for a resolution.
func Explain(p models.Prediction, actual float64) models.Explanation {
	o := Score(p, actual)

	verdict := "incorrect"
	if o.Accurate {
		verdict = "correct"
	}
	summary := fmt.Sprintf("%s %s prediction was %s: predicted %s %+.2f%%, actual %+.2f%%",
		p.Target, p.Timeframe, verdict, p.Direction, p.PredictedChange, o.ActualChange)

	ex := models.Explanation{
		Summary: summary,
		Reasons: []string{
			fmt.Sprintf("direction %s: predicted %s, market moved %+.2f%%", verdict, p.Direction, o.ActualChange),
			fmt.Sprintf("%s magnitude error of %.2f%%", errorBand(o.Error), o.Error),
		},
	}

	switch {
	case o.Accurate && o.Error < moderateErrorBand:
		ex.KeyFactor = KeyFactorAligned
	case o.Accurate:
		ex.KeyFactor = KeyFactorMagnitude
	default:
		ex.KeyFactor = KeyFactorAgainst
	}

	for _, r := range p.Reasons {
		label := r.Signal
		if r.Detail != "" {
			label = r.Signal + ": " + r.Detail
		}
		if impactMatches(r.Impact, o.ActualChange) {
			ex.Confirmed = append(ex.Confirmed, label)
		} else {
			ex.Contradicted = append(ex.Contradicted, label)
		}
	}
	if n := len(p.Reasons); n > 0 {
		ex.Reasons = append(ex.Reasons, fmt.Sprintf("%d of %d signals confirmed by the move", len(ex.Confirmed), n))
	}
	return ex
}
