// Package indicators computes technical indicators over chronological, equally
// spaced series. Every function returns a slice of the input length; positions
// without enough history hold NaN.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

const (
	DefaultRSIPeriod       = 14
	DefaultBollingerPeriod = 20
	DefaultMomentumPeriod  = 10
	MACDFast               = 12
	MACDSlow               = 26
	MACDSignal             = 9
	bollingerDeviations    = 2.0
)

// Undefined reports whether v is the missing-history marker.
func Undefined(v float64) bool { return math.IsNaN(v) }

// Last returns the latest value and whether it is defined.
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return math.NaN(), false
	}
	v := series[len(series)-1]
	return v, !Undefined(v)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskWarmup replaces the first n values with NaN (talib pads them with zeros).
func maskWarmup(series []float64, n int) []float64 {
	for i := 0; i < n && i < len(series); i++ {
		series[i] = math.NaN()
	}
	return series
}

// SMA is the trailing arithmetic mean; undefined for i < period-1.
func SMA(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return nanSeries(len(series))
	}
	if period == 1 {
		out := make([]float64, len(series))
		copy(out, series)
		return out
	}
	return maskWarmup(talib.Sma(series, period), period-1)
}

// EMA seeds with the first value and smooths with k = 2/(period+1). It has no
// warm-up, so every position is defined.
func EMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 || period <= 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = series[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI uses Wilder smoothing. The first value sits at index period and uses the
// plain average of the first period deltas.
func RSI(series []float64, period int) []float64 {
	out := nanSeries(len(series))
	if period <= 0 || len(series) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := series[i] - series[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	p := float64(period)
	avgGain, avgLoss := gain/p, loss/p
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(series); i++ {
		d := series[i] - series[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	return math.Max(0, math.Min(100, v))
}

// MACDResult holds the three MACD lines.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(12) - EMA(26), its EMA(9) signal line and the histogram.
func MACD(series []float64) MACDResult {
	fast := EMA(series, MACDFast)
	slow := EMA(series, MACDSlow)
	line := make([]float64, len(series))
	for i := range series {
		line[i] = fast[i] - slow[i]
	}
	signal := EMA(line, MACDSignal)
	hist := make([]float64, len(series))
	for i := range series {
		hist[i] = line[i] - signal[i]
	}
	return MACDResult{MACD: line, Signal: signal, Histogram: hist}
}

// Bands holds Bollinger upper/middle/lower lines.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands is SMA(period) ± 2 population standard deviations.
func BollingerBands(series []float64, period int) Bands {
	if period <= 1 || len(series) < period {
		return Bands{
			Upper:  nanSeries(len(series)),
			Middle: SMA(series, period),
			Lower:  nanSeries(len(series)),
		}
	}
	upper, middle, lower := talib.BBands(series, period, bollingerDeviations, bollingerDeviations, talib.SMA)
	return Bands{
		Upper:  maskWarmup(upper, period-1),
		Middle: maskWarmup(middle, period-1),
		Lower:  maskWarmup(lower, period-1),
	}
}

// Momentum is the percent change against the value period steps back.
// A zero base yields 0.
func Momentum(series []float64, period int) []float64 {
	if period <= 0 || len(series) <= period {
		return nanSeries(len(series))
	}
	return maskWarmup(talib.Roc(series, period), period)
}
