// Package recommend produces risk-validated trade recommendations. The
// provider orchestrates the fallback chain: cached advisor answer, fresh
// advisor call with bounded retries, indicator heuristic, conservative
// default. Whatever emerges is checked by the risk engine before it is
// surfaced.
package recommend

import (
	"context"
	"fmt"
	"time"

	"gazp_advisor/internal/market"
	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

// AnalysisContext is everything one recommendation decision is based on.
// It is assembled up front so the heuristic and default fallbacks can run
// without further I/O after the advisor path fails.
type AnalysisContext struct {
	Ticker     string
	Price      decimal.Decimal
	Snapshot   models.PortfolioSnapshot
	Indicators models.Indicators
	Clock      models.SessionClock
	Settings   models.UserSettings
	News       string
	Now        time.Time
}

// Snapshotter is the ledger view the context builder reads from.
type Snapshotter interface {
	Snapshot(ctx context.Context, userID int64, priceOf func(ctx context.Context, ticker string) (decimal.Decimal, error)) (models.PortfolioSnapshot, error)
}

// SettingsStore loads per-user risk settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID int64) (models.UserSettings, error)
}

// NewsSource supplies pre-computed recent headlines for the advisor
// prompt. Sentiment analysis happens upstream; this is plain text.
type NewsSource interface {
	RecentHeadlines(ctx context.Context, ticker string) (string, error)
}

// StaticNews is a fixed-text news source, used when headlines arrive via
// configuration rather than a feed.
type StaticNews string

func (s StaticNews) RecentHeadlines(ctx context.Context, ticker string) (string, error) {
	return string(s), nil
}

// ContextBuilder assembles analysis contexts from the ledger and the
// market data collaborator.
type ContextBuilder struct {
	ledger   Snapshotter
	market   market.Provider
	settings SettingsStore
	news     NewsSource
	now      func() time.Time
}

func NewContextBuilder(ledger Snapshotter, marketProvider market.Provider, settings SettingsStore, news NewsSource) *ContextBuilder {
	return &ContextBuilder{
		ledger:   ledger,
		market:   marketProvider,
		settings: settings,
		news:     news,
		now:      time.Now,
	}
}

// Build reads all collaborators and returns the assembled context. Price,
// snapshot and settings are required; indicators and the session clock
// degrade gracefully since the fallback chain can work without them.
func (b *ContextBuilder) Build(ctx context.Context, userID int64, ticker string) (AnalysisContext, error) {
	price, err := b.market.CurrentPrice(ctx, ticker)
	if err != nil {
		return AnalysisContext{}, fmt.Errorf("current price for %s: %w", ticker, err)
	}

	snapshot, err := b.ledger.Snapshot(ctx, userID, func(ctx context.Context, t string) (decimal.Decimal, error) {
		if t == ticker {
			return price, nil
		}
		return b.market.CurrentPrice(ctx, t)
	})
	if err != nil {
		return AnalysisContext{}, fmt.Errorf("portfolio snapshot: %w", err)
	}

	settings, err := b.settings.GetSettings(ctx, userID)
	if err != nil {
		return AnalysisContext{}, fmt.Errorf("user settings: %w", err)
	}

	// Indicator or clock failures leave zero values; the advisor prompt
	// prints N/A and the heuristic falls through to the default.
	indicators, err := b.market.TechnicalIndicators(ctx, ticker)
	if err != nil {
		indicators = models.Indicators{}
	}
	clock, err := b.market.SessionClock(ctx)
	if err != nil {
		clock = models.SessionClock{}
	}
	news := ""
	if b.news != nil {
		if headlines, err := b.news.RecentHeadlines(ctx, ticker); err == nil {
			news = headlines
		}
	}

	return AnalysisContext{
		Ticker:     ticker,
		Price:      price,
		Snapshot:   snapshot,
		Indicators: indicators,
		Clock:      clock,
		Settings:   settings,
		News:       news,
		Now:        b.now(),
	}, nil
}
