package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gazp_advisor/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateUserBootstrap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// One call creates the user, a funded portfolio and default settings.
	capital := decimal.NewFromInt(100000)
	p, err := s.CreateUser(ctx, 42, "demo", capital, models.DefaultSettings(42))
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if !p.Cash.Equal(capital) || !p.InitialCapital.Equal(capital) {
		t.Errorf("Portfolio funding mismatch: cash=%s initial=%s", p.Cash, p.InitialCapital)
	}

	u, err := s.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.Username != "demo" {
		t.Errorf("Expected username demo, got %q", u.Username)
	}

	st, err := s.GetSettings(ctx, 42)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if !st.MaxPositionSizePct.Equal(decimal.NewFromFloat(0.30)) {
		t.Errorf("Expected default max position 0.30, got %s", st.MaxPositionSizePct)
	}
	if st.AutoConfirm {
		t.Error("Expected auto_confirm off by default")
	}

	// Duplicate bootstrap must fail.
	if _, err := s.CreateUser(ctx, 42, "demo", capital, models.DefaultSettings(42)); err == nil {
		t.Error("Expected error on duplicate CreateUser")
	}
}

func TestCreateUserStoresGivenSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	settings := models.DefaultSettings(7)
	settings.RiskProfile = models.ProfileAggressive
	settings.MaxPositionSizePct = decimal.NewFromFloat(0.50)
	settings.StopLossPct = decimal.NewFromFloat(0.08)
	settings.TakeProfitPct = decimal.NewFromFloat(0.20)
	settings.MinRiskReward = decimal.NewFromFloat(1.5)
	settings.AutoConfirm = true

	if _, err := s.CreateUser(ctx, 7, "custom", decimal.NewFromInt(50000), settings); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	st, err := s.GetSettings(ctx, 7)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if st.RiskProfile != models.ProfileAggressive {
		t.Errorf("Expected aggressive profile, got %s", st.RiskProfile)
	}
	if !st.MaxPositionSizePct.Equal(decimal.NewFromFloat(0.50)) {
		t.Errorf("Expected max position 0.50, got %s", st.MaxPositionSizePct)
	}
	if !st.StopLossPct.Equal(decimal.NewFromFloat(0.08)) {
		t.Errorf("Expected stop loss 0.08, got %s", st.StopLossPct)
	}
	if !st.TakeProfitPct.Equal(decimal.NewFromFloat(0.20)) {
		t.Errorf("Expected take profit 0.20, got %s", st.TakeProfitPct)
	}
	if !st.MinRiskReward.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("Expected min risk reward 1.5, got %s", st.MinRiskReward)
	}
	if !st.AutoConfirm {
		t.Error("Expected auto_confirm on")
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUser(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetPortfolioByUser(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPortfolioByUser: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetRecommendation(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRecommendation: expected ErrNotFound, got %v", err)
	}
}

func TestApplyTradeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.CreateUser(ctx, 1, "demo", decimal.NewFromInt(100000), models.DefaultSettings(1))
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	// 1. BUY 100 @ 170: cash down, position upserted, transaction stored.
	now := time.Now().UTC()
	p.Cash = decimal.NewFromInt(82992) // 100000 - 17000 - costs
	pos := models.Position{
		PortfolioID:      p.ID,
		Ticker:           "GAZP",
		Shares:           100,
		AvgPurchasePrice: decimal.NewFromInt(170),
		OpenedAt:         now,
		UpdatedAt:        now,
	}
	txn := models.Transaction{
		ID:          uuid.NewString(),
		PortfolioID: p.ID,
		Action:      models.ActionBuy,
		Ticker:      "GAZP",
		Shares:      100,
		Price:       decimal.NewFromInt(170),
		Commission:  decimal.NewFromFloat(5.10),
		Slippage:    decimal.NewFromFloat(8.50),
		TotalAmount: decimal.NewFromInt(17000),
		Timestamp:   now,
	}
	if err := s.ApplyTrade(ctx, p, pos, false, txn); err != nil {
		t.Fatalf("ApplyTrade failed: %v", err)
	}

	got, err := s.GetPosition(ctx, p.ID, "GAZP")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if got.Shares != 100 || !got.AvgPurchasePrice.Equal(decimal.NewFromInt(170)) {
		t.Errorf("Position mismatch: %+v", got)
	}

	p2, err := s.GetPortfolioByUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetPortfolioByUser failed: %v", err)
	}
	if !p2.Cash.Equal(p.Cash) {
		t.Errorf("Cash mismatch: expected %s, got %s", p.Cash, p2.Cash)
	}

	// 2. Full SELL deletes the position row.
	pos.Shares = 0
	if err := s.ApplyTrade(ctx, p, pos, true, models.Transaction{
		ID:          uuid.NewString(),
		PortfolioID: p.ID,
		Action:      models.ActionSell,
		Ticker:      "GAZP",
		Shares:      100,
		Price:       decimal.NewFromInt(175),
		Commission:  decimal.Zero,
		Slippage:    decimal.Zero,
		TotalAmount: decimal.NewFromInt(17500),
		Timestamp:   now,
	}); err != nil {
		t.Fatalf("ApplyTrade (sell) failed: %v", err)
	}
	if _, err := s.GetPosition(ctx, p.ID, "GAZP"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected position deleted, got %v", err)
	}

	txns, err := s.ListTransactions(ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(txns))
	}
}

func TestRecommendationCAS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, 1, "demo", decimal.NewFromInt(100000), models.DefaultSettings(1)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	rec := models.Recommendation{
		ID:         uuid.NewString(),
		UserID:     1,
		Ticker:     "GAZP",
		Action:     models.ActionBuy,
		Quantity:   100,
		Price:      decimal.NewFromInt(170),
		StopLoss:   decimal.NewFromInt(160),
		TakeProfit: decimal.NewFromInt(190),
		Reasoning:  "test",
		RiskLevel:  models.RiskMedium,
		Confidence: 75,
		KeyFactors: []string{"rsi oversold"},
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(15 * time.Minute),
	}
	if err := s.InsertRecommendation(ctx, rec); err != nil {
		t.Fatalf("InsertRecommendation failed: %v", err)
	}

	// First swap wins, second loses.
	won, err := s.UpdateRecommendationStatus(ctx, rec.ID, models.StatusPending, models.StatusConfirmed)
	if err != nil || !won {
		t.Fatalf("First CAS: won=%v err=%v", won, err)
	}
	won, err = s.UpdateRecommendationStatus(ctx, rec.ID, models.StatusPending, models.StatusConfirmed)
	if err != nil {
		t.Fatalf("Second CAS errored: %v", err)
	}
	if won {
		t.Error("Second CAS should not win")
	}

	got, err := s.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation failed: %v", err)
	}
	if got.Status != models.StatusConfirmed {
		t.Errorf("Expected confirmed, got %s", got.Status)
	}
	if len(got.KeyFactors) != 1 || got.KeyFactors[0] != "rsi oversold" {
		t.Errorf("KeyFactors round-trip mismatch: %v", got.KeyFactors)
	}
}

func TestExpireOverdue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, 1, "demo", decimal.NewFromInt(100000), models.DefaultSettings(1)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	mkRec := func(expiresAt time.Time) models.Recommendation {
		return models.Recommendation{
			ID: uuid.NewString(), UserID: 1, Ticker: "GAZP",
			Action: models.ActionHold, Price: decimal.Zero,
			StopLoss: decimal.Zero, TakeProfit: decimal.Zero,
			RiskLevel: models.RiskLow, Confidence: 50,
			Status: models.StatusPending,
			CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt,
		}
	}

	overdue := mkRec(time.Now().UTC().Add(-time.Minute))
	live := mkRec(time.Now().UTC().Add(time.Hour))
	for _, r := range []models.Recommendation{overdue, live} {
		if err := s.InsertRecommendation(ctx, r); err != nil {
			t.Fatalf("InsertRecommendation failed: %v", err)
		}
	}

	n, err := s.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired, got %d", n)
	}

	got, _ := s.GetRecommendation(ctx, overdue.ID)
	if got.Status != models.StatusExpired {
		t.Errorf("Expected expired, got %s", got.Status)
	}
	got, _ = s.GetRecommendation(ctx, live.ID)
	if got.Status != models.StatusPending {
		t.Errorf("Expected live recommendation untouched, got %s", got.Status)
	}
}
