package market

import (
	"math"
	"testing"
	"time"

	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

func syntheticCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		// Gentle sine wave around 170 so RSI has both gains and losses.
		price := 170.0 + 10.0*math.Sin(float64(i)/7.0)
		candles[i] = models.Candle{
			Time:   start.AddDate(0, 0, i),
			Open:   decimal.NewFromFloat(price - 0.5),
			High:   decimal.NewFromFloat(price + 1),
			Low:    decimal.NewFromFloat(price - 1),
			Close:  decimal.NewFromFloat(price),
			Volume: 1_000_000 + int64(i)*1000,
		}
	}
	return candles
}

func TestComputeIndicatorsShortHistory(t *testing.T) {
	// Ten candles cannot support any window but nothing panics.
	ind := ComputeIndicators(syntheticCandles(10))

	if ind.RSI14 != nil {
		t.Error("Expected nil RSI for 10 candles")
	}
	if ind.MACD != nil || ind.MACDSignal != nil {
		t.Error("Expected nil MACD for 10 candles")
	}
	if ind.SMA20 != nil || ind.SMA50 != nil || ind.SMA200 != nil {
		t.Error("Expected nil SMAs for 10 candles")
	}
}

func TestComputeIndicatorsEmpty(t *testing.T) {
	ind := ComputeIndicators(nil)
	if ind.RSI14 != nil || ind.VolumeAvg != nil {
		t.Error("Expected empty indicator set for no candles")
	}
}

func TestComputeIndicatorsFullHistory(t *testing.T) {
	ind := ComputeIndicators(syntheticCandles(250))

	if ind.RSI14 == nil {
		t.Fatal("Expected RSI")
	}
	if *ind.RSI14 < 0 || *ind.RSI14 > 100 {
		t.Errorf("RSI out of range: %f", *ind.RSI14)
	}
	if ind.MACD == nil || ind.MACDSignal == nil {
		t.Error("Expected MACD pair")
	}
	if ind.SMA20 == nil || ind.SMA50 == nil || ind.SMA200 == nil {
		t.Error("Expected all SMAs for 250 candles")
	}
	// The wave oscillates around 170; long averages should sit near it.
	if ind.SMA200 != nil && (*ind.SMA200 < 160 || *ind.SMA200 > 180) {
		t.Errorf("SMA200 implausible: %f", *ind.SMA200)
	}
	if ind.VolumeAvg == nil {
		t.Error("Expected volume average")
	}
}

func TestComputeIndicatorsMidHistory(t *testing.T) {
	// 60 candles: RSI, MACD, SMA20/50 present, SMA200 absent.
	ind := ComputeIndicators(syntheticCandles(60))

	if ind.RSI14 == nil || ind.MACD == nil || ind.SMA20 == nil || ind.SMA50 == nil {
		t.Error("Expected short-window indicators for 60 candles")
	}
	if ind.SMA200 != nil {
		t.Error("Expected nil SMA200 for 60 candles")
	}
}
