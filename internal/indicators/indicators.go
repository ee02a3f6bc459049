// Package indicators computes technical indicator series from candle data.
//
// Every function returns a series aligned index-for-index with its input:
// positions inside the warm-up window hold nil, so callers (and the JSON
// encoder) can tell "not yet defined" apart from a zero value.
package indicators

import (
	"strconv"
	"strings"
)

// Series is an indicator output aligned with its input candles. Warm-up
// positions are nil and marshal to JSON null.
type Series []*float64

// Last returns the most recent defined value, or nil if the series has none.
func (s Series) Last() *float64 {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != nil {
			return s[i]
		}
	}
	return nil
}

// EMA computes an exponential moving average with smoothing 2/(period+1).
// The first period-1 positions are nil; the seed is the first input value.
func EMA(values []float64, period int) Series {
	out := make(Series, len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}

	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for i := 1; i < len(values); i++ {
		ema = values[i]*alpha + ema*(1-alpha)
		if i >= period-1 {
			v := ema
			out[i] = &v
		}
	}
	if period == 1 {
		v := values[0]
		out[0] = &v
	}
	return out
}

// MACDResult holds the three MACD series.
type MACDResult struct {
	DIF       Series `json:"dif"`
	DEA       Series `json:"dea"`
	Histogram Series `json:"macd"`
}

// MACD computes MACD(12, 26, 9). DIF is defined from the first index where
// the slow EMA is defined; DEA is an EMA(9) over DIF seeded with the first
// DIF value; the histogram is 2*(DIF-DEA).
func MACD(values []float64) MACDResult {
	fast := EMA(values, 12)
	slow := EMA(values, 26)

	n := len(values)
	res := MACDResult{
		DIF:       make(Series, n),
		DEA:       make(Series, n),
		Histogram: make(Series, n),
	}

	alpha := 2.0 / float64(9+1)
	var dea float64
	seeded := false
	for i := 0; i < n; i++ {
		if fast[i] == nil || slow[i] == nil {
			continue
		}
		dif := *fast[i] - *slow[i]
		d := dif
		res.DIF[i] = &d

		if !seeded {
			dea = dif
			seeded = true
		} else {
			dea = dif*alpha + dea*(1-alpha)
		}
		dv := dea
		res.DEA[i] = &dv

		hist := 2 * (dif - dea)
		res.Histogram[i] = &hist
	}
	return res
}

// RSI computes the Wilder relative strength index. Indexes below period are
// nil; the first value uses simple averages of the initial gains and losses,
// later values use Wilder smoothing. A window with no losses reads 100, a
// window with no gains reads 0.
func RSI(values []float64, period int) Series {
	out := make(Series, len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		switch {
		case i < period:
			avgGain += gain
			avgLoss += loss
			continue
		case i == period:
			avgGain = (avgGain + gain) / float64(period)
			avgLoss = (avgLoss + loss) / float64(period)
		default:
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}

		var rsi float64
		switch {
		case avgLoss == 0:
			rsi = 100
		case avgGain == 0:
			rsi = 0
		default:
			rs := avgGain / avgLoss
			rsi = 100 - 100/(1+rs)
		}
		v := rsi
		out[i] = &v
	}
	return out
}

// ClosesFromCandles extracts closing prices from raw OKX candle rows. Rows
// arrive newest first; the result is chronological. Rows too short or with
// an unparseable close are skipped.
func ClosesFromCandles(rows [][]string) []float64 {
	closes := make([]float64, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 5 {
			continue
		}
		v, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			continue
		}
		closes = append(closes, v)
	}
	return closes
}

// FormatValue renders an indicator value with up to eight decimal places,
// trailing zeros trimmed.
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
