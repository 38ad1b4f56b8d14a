package risk

import (
	"testing"

	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

func openClock() models.SessionClock {
	return models.SessionClock{IsOpen: true, MinutesSinceOpen: 120, MinutesUntilClose: 300}
}

func snapshotWithCapital(capital float64) models.PortfolioSnapshot {
	c := decimal.NewFromFloat(capital)
	return models.PortfolioSnapshot{
		UserID:         1,
		Cash:           c,
		InitialCapital: c,
		TotalValue:     c,
	}
}

func buyRec(qty int64, price, sl, tp float64) models.Recommendation {
	return models.Recommendation{
		Ticker:     "GAZP",
		Action:     models.ActionBuy,
		Quantity:   qty,
		Price:      decimal.NewFromFloat(price),
		StopLoss:   decimal.NewFromFloat(sl),
		TakeProfit: decimal.NewFromFloat(tp),
	}
}

func hasRule(res ValidationResult, rule string) bool {
	for _, v := range res.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func TestPositionSizingWithinLimit(t *testing.T) {
	// 100000 capital, BUY 150 @ 170.00 -> notional 25500 (25.5%) passes
	// the 30% cap.
	engine := New(15, 15)
	rec := buyRec(150, 170.00, 160.00, 190.00) // 5.9% stop, 11.8% target, RR 2.0

	res := engine.Validate(rec, snapshotWithCapital(100000), models.DefaultSettings(1), openClock())

	if !res.OK {
		t.Fatalf("Expected ok=true, got violations: %v", res.Violations)
	}
}

func TestPositionSizingExceeded(t *testing.T) {
	// Same capital/price, BUY 200 -> notional 34000 (34%) violates the cap.
	engine := New(15, 15)
	rec := buyRec(200, 170.00, 160.00, 190.00)

	res := engine.Validate(rec, snapshotWithCapital(100000), models.DefaultSettings(1), openClock())

	if res.OK {
		t.Fatal("Expected position sizing violation, got ok=true")
	}
	if !hasRule(res, RulePositionSizing) {
		t.Errorf("Expected %s violation, got %v", RulePositionSizing, res.Violations)
	}
}

func TestRiskRewardRatio(t *testing.T) {
	engine := New(15, 15)
	settings := models.DefaultSettings(1)
	snapshot := snapshotWithCapital(100000)

	// SL at 97% and TP at 111% -> ratio 0.11/0.03 = 3.67 >= 2, passes.
	rec := buyRec(100, 100.00, 97.00, 111.00)
	// But 3% stop is tighter than the required 5% minimum magnitude.
	res := engine.Validate(rec, snapshot, settings, openClock())
	if !hasRule(res, RuleProtectiveLevels) {
		t.Errorf("Expected protective levels violation for 3%% stop, got %v", res.Violations)
	}
	if hasRule(res, RuleRiskReward) {
		t.Errorf("Ratio 3.67 should satisfy min 2.0, got %v", res.Violations)
	}

	// SL at 99% gives ratio 11 but a 1% stop: the magnitude rule fails
	// regardless of ratio.
	rec = buyRec(100, 100.00, 99.00, 111.00)
	res = engine.Validate(rec, snapshot, settings, openClock())
	if res.OK {
		t.Fatal("Expected violation for 1% stop magnitude")
	}
	if !hasRule(res, RuleProtectiveLevels) {
		t.Errorf("Expected protective levels violation, got %v", res.Violations)
	}

	// SL at 95% and TP at 109%: both magnitudes fine but ratio
	// 0.09/0.05 = 1.8 < 2.
	rec = buyRec(100, 100.00, 95.00, 109.00)
	res = engine.Validate(rec, snapshot, settings, openClock())
	if !hasRule(res, RuleRiskReward) {
		t.Errorf("Expected risk/reward violation for ratio 1.8, got %v", res.Violations)
	}
}

func TestRiskRewardZeroDenominator(t *testing.T) {
	// Stop at or above entry must report a violation, not divide by zero.
	engine := New(15, 15)
	rec := buyRec(10, 100.00, 100.00, 120.00)

	res := engine.Validate(rec, snapshotWithCapital(100000), models.DefaultSettings(1), openClock())

	if !hasRule(res, RuleRiskReward) {
		t.Errorf("Expected automatic risk/reward violation, got %v", res.Violations)
	}
}

func TestSessionBlackout(t *testing.T) {
	engine := New(15, 15)
	rec := buyRec(10, 170.00, 160.00, 190.00)
	snapshot := snapshotWithCapital(100000)
	settings := models.DefaultSettings(1)

	cases := []struct {
		name  string
		clock models.SessionClock
		want  bool
	}{
		{"just after open", models.SessionClock{IsOpen: true, MinutesSinceOpen: 5, MinutesUntilClose: 500}, true},
		{"just before close", models.SessionClock{IsOpen: true, MinutesSinceOpen: 500, MinutesUntilClose: 10}, true},
		{"closed", models.SessionClock{IsOpen: false}, true},
		{"mid session", models.SessionClock{IsOpen: true, MinutesSinceOpen: 60, MinutesUntilClose: 60}, false},
	}

	for _, tc := range cases {
		res := engine.Validate(rec, snapshot, settings, tc.clock)
		got := hasRule(res, RuleSessionBlackout)
		if got != tc.want {
			t.Errorf("%s: blackout violation = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSellInventory(t *testing.T) {
	// Position holds 30 shares; SELL 50 must violate inventory.
	engine := New(15, 15)
	snapshot := snapshotWithCapital(100000)
	snapshot.Positions = []models.PositionSnapshot{{
		Ticker: "GAZP",
		Shares: 30,
	}}

	rec := models.Recommendation{
		Ticker:   "GAZP",
		Action:   models.ActionSell,
		Quantity: 50,
		Price:    decimal.NewFromFloat(170.00),
	}
	res := engine.Validate(rec, snapshot, models.DefaultSettings(1), openClock())
	if !hasRule(res, RuleInventory) {
		t.Errorf("Expected inventory violation, got %v", res.Violations)
	}

	// Selling within the held amount passes.
	rec.Quantity = 30
	res = engine.Validate(rec, snapshot, models.DefaultSettings(1), openClock())
	if hasRule(res, RuleInventory) {
		t.Errorf("Unexpected inventory violation: %v", res.Violations)
	}

	// Selling with no position at all violates.
	rec.Ticker = "SBER"
	res = engine.Validate(rec, snapshot, models.DefaultSettings(1), openClock())
	if !hasRule(res, RuleInventory) {
		t.Errorf("Expected inventory violation for absent position, got %v", res.Violations)
	}
}

func TestHoldAlwaysPasses(t *testing.T) {
	// HOLD proposes no trade; even a closed session reports ok.
	engine := New(15, 15)
	rec := models.Recommendation{Ticker: "GAZP", Action: models.ActionHold}

	res := engine.Validate(rec, snapshotWithCapital(100000), models.DefaultSettings(1), models.SessionClock{IsOpen: false})

	if !res.OK {
		t.Errorf("HOLD should always validate, got %v", res.Violations)
	}
}
