// Package portfolio owns all cash and position mutation. Every trade for
// a given user is applied under that user's lock, so concurrent
// confirmations cannot produce lost updates; different users never
// contend.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gazp_advisor/internal/models"
	"gazp_advisor/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds rejects a BUY whose cost exceeds available cash.
	ErrInsufficientFunds = errors.New("portfolio: insufficient funds")
	// ErrInsufficientShares rejects a SELL larger than the held position.
	ErrInsufficientShares = errors.New("portfolio: insufficient shares")
	// ErrInvalidTrade rejects malformed caller input (bad action, non
	// positive shares or price).
	ErrInvalidTrade = errors.New("portfolio: invalid trade")
)

// Store is the slice of the persistence collaborator the ledger needs.
type Store interface {
	GetPortfolioByUser(ctx context.Context, userID int64) (models.Portfolio, error)
	GetPosition(ctx context.Context, portfolioID int64, ticker string) (models.Position, error)
	GetPositions(ctx context.Context, portfolioID int64) ([]models.Position, error)
	ApplyTrade(ctx context.Context, portfolio models.Portfolio, position models.Position, deletePosition bool, txn models.Transaction) error
}

// Ledger applies trades against stored portfolios.
type Ledger struct {
	store Store

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:     store,
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex serializing mutations for one user.
func (l *Ledger) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.userLocks[userID] = lock
	}
	return lock
}

// ApplyTrade debits or credits the user's portfolio and updates the
// position, persisting portfolio, position and the transaction record
// atomically. On any rejection nothing is mutated.
func (l *Ledger) ApplyTrade(ctx context.Context, userID int64, action models.Action, ticker string, shares int64, price, commission, slippage decimal.Decimal, recommendationID string) (models.Transaction, error) {
	if (action != models.ActionBuy && action != models.ActionSell) || shares <= 0 || price.LessThanOrEqual(decimal.Zero) {
		return models.Transaction{}, fmt.Errorf("%w: %s %d shares @ %s", ErrInvalidTrade, action, shares, price)
	}

	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := l.store.GetPortfolioByUser(ctx, userID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("load portfolio: %w", err)
	}

	pos, err := l.store.GetPosition(ctx, p.ID, ticker)
	hadPosition := true
	if errors.Is(err, storage.ErrNotFound) {
		hadPosition = false
		now := time.Now().UTC()
		pos = models.Position{
			PortfolioID:      p.ID,
			Ticker:           ticker,
			AvgPurchasePrice: decimal.Zero,
			OpenedAt:         now,
		}
	} else if err != nil {
		return models.Transaction{}, fmt.Errorf("load position: %w", err)
	}

	notional := price.Mul(decimal.NewFromInt(shares))
	deletePosition := false

	switch action {
	case models.ActionBuy:
		required := notional.Add(commission).Add(slippage)
		if p.Cash.LessThan(required) {
			return models.Transaction{}, fmt.Errorf("%w: need %s, have %s",
				ErrInsufficientFunds, required.StringFixed(2), p.Cash.StringFixed(2))
		}
		p.Cash = p.Cash.Sub(required)

		// Shares-weighted running average, updated only on BUY.
		oldCost := pos.AvgPurchasePrice.Mul(decimal.NewFromInt(pos.Shares))
		pos.Shares += shares
		pos.AvgPurchasePrice = oldCost.Add(notional).Div(decimal.NewFromInt(pos.Shares))

	case models.ActionSell:
		if !hadPosition || shares > pos.Shares {
			held := int64(0)
			if hadPosition {
				held = pos.Shares
			}
			return models.Transaction{}, fmt.Errorf("%w: selling %d, holding %d",
				ErrInsufficientShares, shares, held)
		}
		p.Cash = p.Cash.Add(notional).Sub(commission).Sub(slippage)
		pos.Shares -= shares
		// Average purchase price is untouched by SELL; the position row
		// is removed entirely once flat.
		if pos.Shares == 0 {
			deletePosition = true
		}
	}

	pos.UpdatedAt = time.Now().UTC()

	txn := models.Transaction{
		ID:               uuid.NewString(),
		PortfolioID:      p.ID,
		Action:           action,
		Ticker:           ticker,
		Shares:           shares,
		Price:            price,
		Commission:       commission,
		Slippage:         slippage,
		TotalAmount:      notional,
		RecommendationID: recommendationID,
		Timestamp:        time.Now().UTC(),
	}

	if err := l.store.ApplyTrade(ctx, p, pos, deletePosition, txn); err != nil {
		return models.Transaction{}, fmt.Errorf("persist trade: %w", err)
	}

	return txn, nil
}

// Snapshot values the portfolio at current prices. priceOf is called once
// per held ticker; a price failure fails the snapshot rather than
// reporting a partial valuation.
func (l *Ledger) Snapshot(ctx context.Context, userID int64, priceOf func(ctx context.Context, ticker string) (decimal.Decimal, error)) (models.PortfolioSnapshot, error) {
	p, err := l.store.GetPortfolioByUser(ctx, userID)
	if err != nil {
		return models.PortfolioSnapshot{}, fmt.Errorf("load portfolio: %w", err)
	}
	positions, err := l.store.GetPositions(ctx, p.ID)
	if err != nil {
		return models.PortfolioSnapshot{}, fmt.Errorf("load positions: %w", err)
	}

	snapshot := models.PortfolioSnapshot{
		UserID:         userID,
		Cash:           p.Cash,
		InitialCapital: p.InitialCapital,
		TotalValue:     p.Cash,
		Timestamp:      time.Now().UTC(),
	}

	for _, pos := range positions {
		price, err := priceOf(ctx, pos.Ticker)
		if err != nil {
			return models.PortfolioSnapshot{}, fmt.Errorf("price %s: %w", pos.Ticker, err)
		}
		view := models.PositionSnapshot{
			Ticker:           pos.Ticker,
			Shares:           pos.Shares,
			AvgPurchasePrice: pos.AvgPurchasePrice,
			CurrentPrice:     price,
			MarketValue:      pos.MarketValue(price),
			UnrealizedPnL:    pos.UnrealizedPnL(price),
		}
		snapshot.Positions = append(snapshot.Positions, view)
		snapshot.TotalValue = snapshot.TotalValue.Add(view.MarketValue)
	}

	snapshot.TotalPnL = snapshot.TotalValue.Sub(snapshot.InitialCapital)
	return snapshot, nil
}
