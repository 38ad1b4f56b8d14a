// Package executor turns a confirmed recommendation into an applied
// trade. It owns the pending->confirmed transition; the ledger owns the
// money.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gazp_advisor/internal/config"
	"gazp_advisor/internal/models"
	"gazp_advisor/internal/portfolio"

	"github.com/shopspring/decimal"
)

var (
	// ErrExpired rejects execution of a recommendation past its window.
	ErrExpired = errors.New("executor: recommendation expired")
	// ErrAlreadyResolved rejects a recommendation that already reached a
	// terminal status, covering the double-confirm race.
	ErrAlreadyResolved = errors.New("executor: recommendation already resolved")
	// ErrWrongUser rejects execution of another user's recommendation.
	ErrWrongUser = errors.New("executor: recommendation belongs to another user")
	// ErrNoTrade rejects execution of a HOLD recommendation.
	ErrNoTrade = errors.New("executor: recommendation proposes no trade")
)

// Store is the recommendation persistence slice the executor needs.
type Store interface {
	GetRecommendation(ctx context.Context, id string) (models.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id string, from, to models.RecommendationStatus) (bool, error)
}

// Executor applies confirmed recommendations to the portfolio ledger.
type Executor struct {
	store          Store
	ledger         *portfolio.Ledger
	commissionRate decimal.Decimal
	slippageBps    decimal.Decimal
	persistRetries int
	now            func() time.Time
}

func New(cfg *config.Config, store Store, ledger *portfolio.Ledger) *Executor {
	return &Executor{
		store:          store,
		ledger:         ledger,
		commissionRate: decimal.NewFromFloat(cfg.CommissionRate),
		slippageBps:    decimal.NewFromFloat(cfg.SlippageBps),
		persistRetries: 3,
		now:            time.Now,
	}
}

// Execute claims the recommendation via compare-and-swap on its pending
// status and applies the trade. A ledger rejection flips the status back
// to pending, so nothing is half-done and the user may retry later.
func (e *Executor) Execute(ctx context.Context, recommendationID string, userID int64) (models.Transaction, error) {
	rec, err := e.store.GetRecommendation(ctx, recommendationID)
	if err != nil {
		return models.Transaction{}, err
	}
	if rec.UserID != userID {
		return models.Transaction{}, ErrWrongUser
	}
	if rec.Action == models.ActionHold {
		return models.Transaction{}, ErrNoTrade
	}
	// Terminal states answer AlreadyResolved even when the window has
	// also passed; expiry only applies to a still-pending row.
	if rec.Status != models.StatusPending {
		return models.Transaction{}, ErrAlreadyResolved
	}

	if rec.IsExpired(e.now()) {
		if _, err := e.store.UpdateRecommendationStatus(ctx, rec.ID, models.StatusPending, models.StatusExpired); err != nil {
			return models.Transaction{}, err
		}
		return models.Transaction{}, ErrExpired
	}

	swapped, err := e.store.UpdateRecommendationStatus(ctx, rec.ID, models.StatusPending, models.StatusConfirmed)
	if err != nil {
		return models.Transaction{}, err
	}
	if !swapped {
		return models.Transaction{}, ErrAlreadyResolved
	}

	notional := rec.Notional()
	commission := notional.Mul(e.commissionRate)
	slippage := notional.Mul(e.slippageBps).Div(decimal.NewFromInt(10000))

	txn, err := e.applyWithRetry(ctx, rec, commission, slippage)
	if err != nil {
		// Give the claim back so a later attempt can retry.
		if _, cerr := e.store.UpdateRecommendationStatus(ctx, rec.ID, models.StatusConfirmed, models.StatusPending); cerr != nil {
			log.Printf("ERROR: could not return recommendation %s to pending after failed trade: %v", rec.ID, cerr)
		}
		return models.Transaction{}, err
	}

	log.Printf("INFO: executed %s %d %s @ %s for user %d (txn %s)",
		rec.Action, rec.Quantity, rec.Ticker, rec.Price.StringFixed(2), userID, txn.ID)
	return txn, nil
}

// applyWithRetry retries transient persistence failures. Business
// rejections like insufficient funds or shares fail once and for all.
func (e *Executor) applyWithRetry(ctx context.Context, rec models.Recommendation, commission, slippage decimal.Decimal) (models.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < e.persistRetries; attempt++ {
		txn, err := e.ledger.ApplyTrade(ctx, rec.UserID, rec.Action, rec.Ticker,
			rec.Quantity, rec.Price, commission, slippage, rec.ID)
		if err == nil {
			return txn, nil
		}
		if errors.Is(err, portfolio.ErrInsufficientFunds) ||
			errors.Is(err, portfolio.ErrInsufficientShares) ||
			errors.Is(err, portfolio.ErrInvalidTrade) {
			return models.Transaction{}, err
		}
		lastErr = err
		log.Printf("WARN: trade persist attempt %d/%d failed: %v", attempt+1, e.persistRetries, err)

		select {
		case <-ctx.Done():
			return models.Transaction{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return models.Transaction{}, fmt.Errorf("trade persist failed after %d attempts: %w", e.persistRetries, lastErr)
}
