package signals

import (
	"fmt"
	"math"

	"ChainSignal/internal/domain/models"
	"ChainSignal/internal/services/indicators"
)

// MinSamples is the shortest series a slot can be predicted from: the SMA25
// window plus one step, which also covers the EMA26 leg of MACD.
const MinSamples = 26

const (
	smaFastPeriod  = 7
	smaSlowPeriod  = 25
	emaTrendPeriod = 20

	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// Signal weights.
const (
	WeightRSI       = 0.25
	WeightMACD      = 0.20
	WeightSMACross  = 0.20
	WeightBollinger = 0.15
	WeightMomentum  = 0.20
	WeightEMATrend  = 0.15
)

// Build interprets the indicator library over series (chronological) and returns
// the signals with their reasons, in a fixed order. Undefined indicator values
// produce no signal.
func Build(series []float64) ([]models.Signal, []models.Reason, error) {
	if len(series) < MinSamples {
		return nil, nil, fmt.Errorf("%w: have %d, need %d", models.ErrInsufficientSamples, len(series), MinSamples)
	}

	b := builder{last: series[len(series)-1]}
	b.eps = 1e-9 * math.Max(1, math.Abs(b.last))

	b.rsi(series)
	b.macd(series)
	b.smaCross(series)
	b.bollinger(series)
	b.momentum(series)
	b.emaTrend(series)

	return b.signals, b.reasons, nil
}

type builder struct {
	last    float64
	eps     float64
	signals []models.Signal
	reasons []models.Reason
}

func (b *builder) add(name string, dir models.Direction, weight, value float64, detail string) {
	b.signals = append(b.signals, models.Signal{Name: name, Direction: dir, Weight: weight, Value: value})
	b.reasons = append(b.reasons, models.Reason{Signal: name, Impact: models.ImpactFor(dir), Detail: detail})
}

// sign compares a against b with a tolerance scaled to the series level.
func (b *builder) sign(a, c float64) int {
	d := a - c
	switch {
	case d > b.eps:
		return 1
	case d < -b.eps:
		return -1
	default:
		return 0
	}
}

func (b *builder) rsi(series []float64) {
	v, ok := indicators.Last(indicators.RSI(series, indicators.DefaultRSIPeriod))
	if !ok {
		return
	}
	// A flat window has no losses and reads 100; that is not overbought.
	if flat(series[len(series)-indicators.DefaultRSIPeriod-1:], b.eps) {
		b.add("rsi", models.DirectionNeutral, WeightRSI, v, "RSI flat, no price movement in window")
		return
	}
	switch {
	case v < rsiOversold:
		b.add("rsi", models.DirectionUp, WeightRSI, v, fmt.Sprintf("RSI %.1f oversold", v))
	case v > rsiOverbought:
		b.add("rsi", models.DirectionDown, WeightRSI, v, fmt.Sprintf("RSI %.1f overbought", v))
	default:
		b.add("rsi", models.DirectionNeutral, WeightRSI, v, fmt.Sprintf("RSI %.1f in neutral zone", v))
	}
}

func (b *builder) macd(series []float64) {
	h, ok := indicators.Last(indicators.MACD(series).Histogram)
	if !ok {
		return
	}
	switch b.sign(h, 0) {
	case 1:
		b.add("macd", models.DirectionUp, WeightMACD, h, fmt.Sprintf("MACD histogram positive (%.4f)", h))
	case -1:
		b.add("macd", models.DirectionDown, WeightMACD, h, fmt.Sprintf("MACD histogram negative (%.4f)", h))
	default:
		b.add("macd", models.DirectionNeutral, WeightMACD, 0, "MACD histogram flat")
	}
}

func (b *builder) smaCross(series []float64) {
	fast, ok1 := indicators.Last(indicators.SMA(series, smaFastPeriod))
	slow, ok2 := indicators.Last(indicators.SMA(series, smaSlowPeriod))
	if !ok1 || !ok2 {
		return
	}
	spread := percentDiff(fast, slow)
	switch b.sign(fast, slow) {
	case 1:
		b.add("sma_cross", models.DirectionUp, WeightSMACross, spread, fmt.Sprintf("SMA7 above SMA25 by %.2f%%", spread))
	case -1:
		b.add("sma_cross", models.DirectionDown, WeightSMACross, spread, fmt.Sprintf("SMA7 below SMA25 by %.2f%%", -spread))
	default:
		b.add("sma_cross", models.DirectionNeutral, WeightSMACross, 0, "SMA7 and SMA25 converged")
	}
}

func (b *builder) bollinger(series []float64) {
	bands := indicators.BollingerBands(series, indicators.DefaultBollingerPeriod)
	upper, ok1 := indicators.Last(bands.Upper)
	lower, ok2 := indicators.Last(bands.Lower)
	if !ok1 || !ok2 {
		return
	}
	pos := 0.5
	if width := upper - lower; width > b.eps {
		pos = (b.last - lower) / width
	}
	switch {
	case b.sign(b.last, lower) < 0:
		b.add("bollinger", models.DirectionUp, WeightBollinger, pos, "price below lower Bollinger band")
	case b.sign(b.last, upper) > 0:
		b.add("bollinger", models.DirectionDown, WeightBollinger, pos, "price above upper Bollinger band")
	default:
		b.add("bollinger", models.DirectionNeutral, WeightBollinger, pos, "price inside Bollinger bands")
	}
}

func (b *builder) momentum(series []float64) {
	m, ok := indicators.Last(indicators.Momentum(series, indicators.DefaultMomentumPeriod))
	if !ok {
		return
	}
	switch {
	case m > 1e-9:
		b.add("momentum", models.DirectionUp, WeightMomentum, m, fmt.Sprintf("momentum +%.2f%% over %d samples", m, indicators.DefaultMomentumPeriod))
	case m < -1e-9:
		b.add("momentum", models.DirectionDown, WeightMomentum, m, fmt.Sprintf("momentum %.2f%% over %d samples", m, indicators.DefaultMomentumPeriod))
	default:
		b.add("momentum", models.DirectionNeutral, WeightMomentum, 0, "no momentum")
	}
}

func (b *builder) emaTrend(series []float64) {
	ema, ok := indicators.Last(indicators.EMA(series, emaTrendPeriod))
	if !ok {
		return
	}
	diff := percentDiff(b.last, ema)
	switch b.sign(b.last, ema) {
	case 1:
		b.add("ema_trend", models.DirectionUp, WeightEMATrend, diff, fmt.Sprintf("price %.2f%% above EMA20", diff))
	case -1:
		b.add("ema_trend", models.DirectionDown, WeightEMATrend, diff, fmt.Sprintf("price %.2f%% below EMA20", -diff))
	default:
		b.add("ema_trend", models.DirectionNeutral, WeightEMATrend, 0, "price on EMA20")
	}
}

func flat(window []float64, eps float64) bool {
	for i := 1; i < len(window); i++ {
		if math.Abs(window[i]-window[0]) > eps {
			return false
		}
	}
	return true
}

func percentDiff(a, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (a - base) / math.Abs(base) * 100
}
