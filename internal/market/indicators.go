package market

import (
	"gazp_advisor/internal/models"

	"github.com/markcheno/go-talib"
)

// Indicator periods. RSI 14 and MACD 12/26/9 are the classic settings the
// advisor prompt documents.
const (
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	smaShort       = 20
	smaMid         = 50
	smaLong        = 200
	volumeAvgSpan  = 20
)

// ComputeIndicators derives the indicator set from daily candles, oldest
// first. Each indicator is nil when the history is too short for its
// window; callers treat a fully nil result as "indicators unavailable".
func ComputeIndicators(candles []models.Candle) models.Indicators {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		volumes[i] = float64(c.Volume)
	}

	var ind models.Indicators

	if len(closes) > rsiPeriod {
		ind.RSI14 = lastValid(talib.Rsi(closes, rsiPeriod))
	}
	if len(closes) > macdSlow+macdSignal {
		macd, signal, _ := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		ind.MACD = lastValid(macd)
		ind.MACDSignal = lastValid(signal)
	}
	if len(closes) >= smaShort {
		ind.SMA20 = lastValid(talib.Sma(closes, smaShort))
	}
	if len(closes) >= smaMid {
		ind.SMA50 = lastValid(talib.Sma(closes, smaMid))
	}
	if len(closes) >= smaLong {
		ind.SMA200 = lastValid(talib.Sma(closes, smaLong))
	}
	if len(volumes) >= volumeAvgSpan {
		ind.VolumeAvg = lastValid(talib.Sma(volumes, volumeAvgSpan))
	}

	return ind
}

// lastValid returns a pointer to the final value of a talib series, or
// nil when the series is empty or ends in NaN.
func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if v != v { // NaN
		return nil
	}
	return &v
}
