// Package alpaca adapts the Alpaca market data and trading clock to the
// market.Provider interface. Credentials come from the standard Alpaca
// environment variables (APCA_API_KEY_ID, APCA_API_SECRET_KEY).
package alpaca

import (
	"context"
	"fmt"
	"time"

	"gazp_advisor/internal/market"
	"gazp_advisor/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// Provider serves market data for US-listed tickers.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
}

var _ market.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
	}
}

func (p *Provider) CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	trade, err := p.mdClient.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, err
	}
	if trade == nil {
		return decimal.Zero, fmt.Errorf("alpaca: no trade found for %s", ticker)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

func (p *Provider) DailyCandles(ctx context.Context, ticker string, limit int) ([]models.Candle, error) {
	// Weekends and holidays thin the calendar; fetch double the span.
	start := time.Now().AddDate(0, 0, -limit*2)
	bars, err := p.mdClient.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
	})
	if err != nil {
		return nil, err
	}

	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, models.Candle{
			Time:   b.Timestamp,
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: int64(b.Volume),
		})
	}
	return candles, nil
}

func (p *Provider) TechnicalIndicators(ctx context.Context, ticker string) (models.Indicators, error) {
	candles, err := p.DailyCandles(ctx, ticker, 250)
	if err != nil {
		return models.Indicators{}, err
	}
	return market.ComputeIndicators(candles), nil
}

// SessionClock maps the Alpaca trading clock onto the session view. When
// the market is closed both minute figures are zero.
func (p *Provider) SessionClock(ctx context.Context) (models.SessionClock, error) {
	c, err := p.tradeClient.GetClock()
	if err != nil {
		return models.SessionClock{}, err
	}
	if !c.IsOpen {
		return models.SessionClock{}, nil
	}

	// The clock reports the next close directly; the session open is
	// reconstructed from the standard 6.5 hour NYSE session.
	untilClose := int(c.NextClose.Sub(c.Timestamp).Minutes())
	sinceOpen := 390 - untilClose
	if sinceOpen < 0 {
		sinceOpen = 0
	}
	return models.SessionClock{
		IsOpen:            true,
		MinutesSinceOpen:  sinceOpen,
		MinutesUntilClose: untilClose,
	}, nil
}
