package executor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gazp_advisor/internal/config"
	"gazp_advisor/internal/models"
	"gazp_advisor/internal/portfolio"
	"gazp_advisor/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestExecutor(t *testing.T) (*Executor, *storage.Store, *portfolio.Ledger) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "executor.db"))
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.CreateUser(context.Background(), 1, "demo", decimal.NewFromInt(100000), models.DefaultSettings(1)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	cfg := &config.Config{CommissionRate: 0.0003, SlippageBps: 5}
	ledger := portfolio.NewLedger(store)
	return New(cfg, store, ledger), store, ledger
}

func pendingRec(t *testing.T, store *storage.Store, action models.Action, qty int64) models.Recommendation {
	t.Helper()
	now := time.Now().UTC()
	rec := models.Recommendation{
		ID:         uuid.NewString(),
		UserID:     1,
		Ticker:     "GAZP",
		Action:     action,
		Quantity:   qty,
		Price:      decimal.NewFromInt(170),
		StopLoss:   decimal.NewFromFloat(161.5),
		TakeProfit: decimal.NewFromInt(187),
		Reasoning:  "test",
		RiskLevel:  models.RiskMedium,
		Confidence: 70,
		Status:     models.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(15 * time.Minute),
	}
	if err := store.InsertRecommendation(context.Background(), rec); err != nil {
		t.Fatalf("InsertRecommendation failed: %v", err)
	}
	return rec
}

func TestExecuteBuyConfirmsAndDebits(t *testing.T) {
	e, store, ledger := newTestExecutor(t)
	ctx := context.Background()
	rec := pendingRec(t, store, models.ActionBuy, 100)

	txn, err := e.Execute(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Notional 17000: commission 5.10, slippage 8.50.
	if !txn.Commission.Equal(decimal.NewFromFloat(5.10)) {
		t.Errorf("Got commission %s, expected 5.10", txn.Commission)
	}
	if !txn.Slippage.Equal(decimal.NewFromFloat(8.50)) {
		t.Errorf("Got slippage %s, expected 8.50", txn.Slippage)
	}
	if txn.RecommendationID != rec.ID {
		t.Errorf("Transaction not linked to recommendation")
	}

	stored, err := store.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation failed: %v", err)
	}
	if stored.Status != models.StatusConfirmed {
		t.Errorf("Got status %s, expected confirmed", stored.Status)
	}

	snap, err := ledger.Snapshot(ctx, 1, func(context.Context, string) (decimal.Decimal, error) {
		return decimal.NewFromInt(170), nil
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	wantCash := decimal.NewFromFloat(100000 - 17000 - 5.10 - 8.50)
	if !snap.Cash.Equal(wantCash) {
		t.Errorf("Got cash %s, expected %s", snap.Cash, wantCash)
	}
}

func TestDoubleConfirmRace(t *testing.T) {
	e, store, _ := newTestExecutor(t)
	ctx := context.Background()
	rec := pendingRec(t, store, models.ActionBuy, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Execute(ctx, rec.ID, 1)
		}(i)
	}
	wg.Wait()

	var ok, resolved int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyResolved):
			resolved++
		default:
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if ok != 1 || resolved != 1 {
		t.Errorf("Got %d successes and %d AlreadyResolved, expected 1 and 1", ok, resolved)
	}

	p, err := store.GetPortfolioByUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetPortfolioByUser failed: %v", err)
	}
	txns, err := store.ListTransactions(ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("Got %d transactions, expected exactly 1", len(txns))
	}
}

func TestExecuteExpired(t *testing.T) {
	e, store, _ := newTestExecutor(t)
	ctx := context.Background()
	rec := pendingRec(t, store, models.ActionBuy, 100)

	e.now = func() time.Time { return rec.ExpiresAt.Add(time.Minute) }

	_, err := e.Execute(ctx, rec.ID, 1)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("Got %v, expected ErrExpired", err)
	}

	stored, err := store.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation failed: %v", err)
	}
	if stored.Status != models.StatusExpired {
		t.Errorf("Got status %s, expected expired", stored.Status)
	}
}

func TestExecuteInsufficientSharesLeavesPending(t *testing.T) {
	e, store, ledger := newTestExecutor(t)
	ctx := context.Background()

	// Hold 30 shares, then try to sell 50.
	if _, err := ledger.ApplyTrade(ctx, 1, models.ActionBuy, "GAZP", 30,
		decimal.NewFromInt(170), decimal.Zero, decimal.Zero, ""); err != nil {
		t.Fatalf("Setup buy failed: %v", err)
	}
	rec := pendingRec(t, store, models.ActionSell, 50)

	_, err := e.Execute(ctx, rec.ID, 1)
	if !errors.Is(err, portfolio.ErrInsufficientShares) {
		t.Fatalf("Got %v, expected ErrInsufficientShares", err)
	}

	stored, err := store.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation failed: %v", err)
	}
	if stored.Status != models.StatusPending {
		t.Errorf("Got status %s, expected pending after ledger rejection", stored.Status)
	}

	p, err := store.GetPortfolioByUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetPortfolioByUser failed: %v", err)
	}
	pos, err := store.GetPosition(ctx, p.ID, "GAZP")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if pos.Shares != 30 {
		t.Errorf("Got %d shares, expected untouched 30", pos.Shares)
	}
}

func TestExecuteWrongUser(t *testing.T) {
	e, store, _ := newTestExecutor(t)
	rec := pendingRec(t, store, models.ActionBuy, 100)

	_, err := e.Execute(context.Background(), rec.ID, 99)
	if !errors.Is(err, ErrWrongUser) {
		t.Fatalf("Got %v, expected ErrWrongUser", err)
	}
}

func TestExecuteHold(t *testing.T) {
	e, store, _ := newTestExecutor(t)
	rec := pendingRec(t, store, models.ActionHold, 0)

	_, err := e.Execute(context.Background(), rec.ID, 1)
	if !errors.Is(err, ErrNoTrade) {
		t.Fatalf("Got %v, expected ErrNoTrade", err)
	}

	stored, err := store.GetRecommendation(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation failed: %v", err)
	}
	if stored.Status != models.StatusPending {
		t.Errorf("Got status %s, HOLD execution must not change status", stored.Status)
	}
}

func TestExecuteResolvedPastExpiryIsAlreadyResolved(t *testing.T) {
	e, store, _ := newTestExecutor(t)
	ctx := context.Background()
	rec := pendingRec(t, store, models.ActionBuy, 100)

	swapped, err := store.UpdateRecommendationStatus(ctx, rec.ID, models.StatusPending, models.StatusRejected)
	if err != nil || !swapped {
		t.Fatalf("Status swap failed: swapped=%v err=%v", swapped, err)
	}
	e.now = func() time.Time { return rec.ExpiresAt.Add(time.Minute) }

	_, err = e.Execute(ctx, rec.ID, 1)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("Got %v, expected ErrAlreadyResolved for a rejected recommendation", err)
	}

	stored, err := store.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation failed: %v", err)
	}
	if stored.Status != models.StatusRejected {
		t.Errorf("Got status %s, rejected must stay rejected", stored.Status)
	}
}
