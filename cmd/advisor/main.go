package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gazp_advisor/internal/ai"
	"gazp_advisor/internal/config"
	"gazp_advisor/internal/executor"
	"gazp_advisor/internal/logger"
	"gazp_advisor/internal/market"
	"gazp_advisor/internal/market/alpaca"
	"gazp_advisor/internal/market/moex"
	"gazp_advisor/internal/models"
	"gazp_advisor/internal/portfolio"
	"gazp_advisor/internal/recommend"
	"gazp_advisor/internal/risk"
	"gazp_advisor/internal/storage"

	"github.com/shopspring/decimal"
)

const LogFile = "advisor.log"

// localUserID is the single advisory account this process serves. A chat
// front-end would pass its own user identifiers instead.
const localUserID = 1

func main() {
	cfg := config.Load()

	logger.Setup(LogFile, cfg.MaxLogSizeMB, cfg.MaxLogBackups)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("FATAL: open store at %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	if _, err := store.GetUser(ctx, localUserID); errors.Is(err, storage.ErrNotFound) {
		capital := decimal.NewFromFloat(cfg.DefaultCapital)
		settings := models.DefaultSettings(localUserID)
		settings.MaxPositionSizePct = decimal.NewFromFloat(cfg.DefaultMaxPositionPct)
		settings.StopLossPct = decimal.NewFromFloat(cfg.DefaultStopLossPct)
		settings.TakeProfitPct = decimal.NewFromFloat(cfg.DefaultTakeProfitPct)
		settings.MinRiskReward = decimal.NewFromFloat(cfg.DefaultMinRiskReward)
		if _, err := store.CreateUser(ctx, localUserID, "local", capital, settings); err != nil {
			log.Fatalf("FATAL: bootstrap user: %v", err)
		}
		log.Printf("Created local user with initial capital %s", capital.StringFixed(2))
	} else if err != nil {
		log.Fatalf("FATAL: load user: %v", err)
	}

	// Market data, by venue
	var marketProvider market.Provider
	switch cfg.MarketVenue {
	case "alpaca":
		marketProvider = alpaca.NewProvider()
	default:
		marketProvider = moex.NewProvider(cfg)
	}

	// Core services
	ledger := portfolio.NewLedger(store)
	riskEngine := risk.New(cfg.BlackoutOpenMins, cfg.BlackoutCloseMins)
	advisor := ai.NewClient(cfg)
	builder := recommend.NewContextBuilder(ledger, marketProvider, store, recommend.StaticNews(cfg.NewsHeadlines))
	provider := recommend.NewProvider(cfg, builder, advisor, riskEngine, store)
	exec := executor.New(cfg, store, ledger)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Println("Shutting down: system signal received")
		cancel()
	}()

	log.Printf("Advisor initialized: venue=%s ticker=%s ttl=%s", cfg.MarketVenue, cfg.DefaultTicker, cfg.RecommendationTTL)

	// Background sweep keeps the audit trail honest between reads.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := provider.SweepExpired(ctx); err != nil && ctx.Err() == nil {
					log.Printf("WARN: expiry sweep failed: %v", err)
				}
			}
		}
	}()

	// Advisory loop: one fresh recommendation per TTL window.
	advise(ctx, cfg, store, provider, exec)

	ticker := time.NewTicker(cfg.RecommendationTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Advisor stopped")
			return
		case <-ticker.C:
			advise(ctx, cfg, store, provider, exec)
		}
	}
}

// advise fetches a recommendation for the local user and, when the user
// opted into auto-confirm, executes it immediately.
func advise(ctx context.Context, cfg *config.Config, store *storage.Store, provider *recommend.Provider, exec *executor.Executor) {
	rec, err := provider.GetRecommendation(ctx, localUserID, cfg.DefaultTicker)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("WARN: recommendation failed: %v", err)
		}
		return
	}

	log.Printf("Recommendation %s: %s %d %s @ %s (confidence %d, risk %s, expires %s)",
		rec.ID, rec.Action, rec.Quantity, rec.Ticker, rec.Price.StringFixed(2),
		rec.Confidence, rec.RiskLevel, rec.ExpiresAt.Format(time.RFC3339))

	settings, err := store.GetSettings(ctx, localUserID)
	if err != nil {
		log.Printf("WARN: load settings: %v", err)
		return
	}
	if !settings.AutoConfirm {
		return
	}

	txn, err := exec.Execute(ctx, rec.ID, localUserID)
	switch {
	case err == nil:
		log.Printf("Auto-confirmed: %s %d %s for %s (commission %s, slippage %s)",
			txn.Action, txn.Shares, txn.Ticker, txn.TotalAmount.StringFixed(2),
			txn.Commission.StringFixed(2), txn.Slippage.StringFixed(2))
	case errors.Is(err, executor.ErrNoTrade):
		// HOLD, nothing to do.
	default:
		log.Printf("WARN: auto-confirm failed: %v", err)
	}
}
