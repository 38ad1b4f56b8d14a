// Package market defines the market-data collaborator interface and the
// indicator math shared by its implementations. The engine only reads
// market data; order routing does not exist in this system.
package market

import (
	"context"

	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

// Provider is the market-data collaborator. Implementations exist for
// MOEX ISS (the default venue) and Alpaca; tests use fakes.
type Provider interface {
	// CurrentPrice returns the latest trade price for ticker.
	CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	// DailyCandles returns up to limit daily OHLCV bars, oldest first.
	DailyCandles(ctx context.Context, ticker string, limit int) ([]models.Candle, error)
	// TechnicalIndicators returns the indicator set computed from recent
	// daily candles. Fields the history cannot support are nil.
	TechnicalIndicators(ctx context.Context, ticker string) (models.Indicators, error)
	// SessionClock places now inside the venue's trading session.
	SessionClock(ctx context.Context) (models.SessionClock, error)
}
