package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one daily OHLCV bar.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Indicators holds the technical indicator set the advisor prompt and the
// heuristic fallback consume. Nil fields mean the candle history was too
// short to compute that value.
type Indicators struct {
	RSI14      *float64 `json:"rsi_14,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macd_signal,omitempty"`
	SMA20      *float64 `json:"sma_20,omitempty"`
	SMA50      *float64 `json:"sma_50,omitempty"`
	SMA200     *float64 `json:"sma_200,omitempty"`
	VolumeAvg  *float64 `json:"volume_avg,omitempty"`
}

// SessionClock places "now" inside the trading session. The risk engine
// uses it for the open/close blackout rule.
type SessionClock struct {
	IsOpen            bool `json:"is_open"`
	MinutesSinceOpen  int  `json:"minutes_since_open"`
	MinutesUntilClose int  `json:"minutes_until_close"`
}

// PositionSnapshot is a read-only view of one holding, valued at the
// current price.
type PositionSnapshot struct {
	Ticker           string          `json:"ticker"`
	Shares           int64           `json:"shares"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MarketValue      decimal.Decimal `json:"market_value"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioSnapshot is the point-in-time valuation the risk engine and the
// advisor prompt work from. It is a copy; mutating it does not touch the
// ledger.
type PortfolioSnapshot struct {
	UserID         int64              `json:"user_id"`
	Cash           decimal.Decimal    `json:"cash"`
	InitialCapital decimal.Decimal    `json:"initial_capital"`
	Positions      []PositionSnapshot `json:"positions"`
	TotalValue     decimal.Decimal    `json:"total_value"`
	TotalPnL       decimal.Decimal    `json:"total_pnl"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Position returns the snapshot entry for ticker, if any.
func (s PortfolioSnapshot) Position(ticker string) (PositionSnapshot, bool) {
	for _, p := range s.Positions {
		if p.Ticker == ticker {
			return p, true
		}
	}
	return PositionSnapshot{}, false
}
