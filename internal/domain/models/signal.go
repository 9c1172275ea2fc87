package models

// Direction is the directional opinion of a signal or prediction.
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Impact labels a reason with the market move it argues for.
type Impact string

const (
	ImpactBullish Impact = "bullish"
	ImpactBearish Impact = "bearish"
	ImpactNeutral Impact = "neutral"
)

// ImpactFor maps a direction onto the reason impact vocabulary.
func ImpactFor(d Direction) Impact {
	switch d {
	case DirectionUp:
		return ImpactBullish
	case DirectionDown:
		return ImpactBearish
	default:
		return ImpactNeutral
	}
}

// Signal is a single indicator's directional opinion. Value is kept for audit only.
type Signal struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Weight    float64   `json:"weight"`
	Value     float64   `json:"value"`
}

// Reason is the human readable counterpart of a Signal.
type Reason struct {
	Signal string `json:"signal"`
	Impact Impact `json:"impact"`
	Detail string `json:"detail"`
}

// AggregateResult is the output of signal aggregation.
type AggregateResult struct {
	Direction      Direction `json:"direction"`
	Change         float64   `json:"change"`
	Confidence     int       `json:"confidence"`
	PredictedValue float64   `json:"predicted_value"`
}
