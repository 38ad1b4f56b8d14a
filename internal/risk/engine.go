// Package risk validates proposed trades against hard limits. The engine
// is a pure function over its inputs: it never mutates state and never
// returns an error, it only reports named violations. Downgrading a
// violating recommendation is the caller's job.
package risk

import (
	"fmt"

	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

// Rule names, used as the stable identifier in violations.
const (
	RulePositionSizing   = "position_sizing"
	RuleProtectiveLevels = "protective_levels"
	RuleRiskReward       = "risk_reward"
	RuleSessionBlackout  = "session_blackout"
	RuleInventory        = "inventory"
)

// Violation is one failed rule with a human-readable detail.
type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

// ValidationResult reports the outcome of all rules.
type ValidationResult struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations,omitempty"`
}

// Engine evaluates the rule set. It is stateless and safe for concurrent
// use.
type Engine struct {
	blackoutOpenMins  int
	blackoutCloseMins int
}

// New returns an engine with the given open/close blackout margins in
// minutes.
func New(blackoutOpenMins, blackoutCloseMins int) *Engine {
	return &Engine{
		blackoutOpenMins:  blackoutOpenMins,
		blackoutCloseMins: blackoutCloseMins,
	}
}

// Validate runs every rule against the proposed recommendation. HOLD
// proposes no trade, so it passes trivially.
func (e *Engine) Validate(rec models.Recommendation, snapshot models.PortfolioSnapshot, settings models.UserSettings, clock models.SessionClock) ValidationResult {
	if rec.Action == models.ActionHold {
		return ValidationResult{OK: true}
	}

	var violations []Violation

	// Session blackout: no new proposals in the first or last minutes of
	// the session, or when the session is closed.
	if !clock.IsOpen {
		violations = append(violations, Violation{
			Rule:   RuleSessionBlackout,
			Detail: "market session is closed",
		})
	} else if clock.MinutesSinceOpen < e.blackoutOpenMins {
		violations = append(violations, Violation{
			Rule:   RuleSessionBlackout,
			Detail: fmt.Sprintf("only %d minutes since open (blackout %d)", clock.MinutesSinceOpen, e.blackoutOpenMins),
		})
	} else if clock.MinutesUntilClose < e.blackoutCloseMins {
		violations = append(violations, Violation{
			Rule:   RuleSessionBlackout,
			Detail: fmt.Sprintf("only %d minutes until close (blackout %d)", clock.MinutesUntilClose, e.blackoutCloseMins),
		})
	}

	switch rec.Action {
	case models.ActionBuy:
		violations = append(violations, e.checkBuy(rec, snapshot, settings)...)
	case models.ActionSell:
		violations = append(violations, e.checkSell(rec, snapshot)...)
	}

	return ValidationResult{OK: len(violations) == 0, Violations: violations}
}

func (e *Engine) checkBuy(rec models.Recommendation, snapshot models.PortfolioSnapshot, settings models.UserSettings) []Violation {
	var violations []Violation

	// Position sizing: notional must stay inside the configured fraction
	// of total portfolio value.
	notional := rec.Notional()
	limit := snapshot.TotalValue.Mul(settings.MaxPositionSizePct)
	if notional.GreaterThan(limit) {
		violations = append(violations, Violation{
			Rule: RulePositionSizing,
			Detail: fmt.Sprintf("notional %s exceeds %s%% of portfolio value (%s)",
				notional.StringFixed(2),
				settings.MaxPositionSizePct.Mul(decimal.NewFromInt(100)).StringFixed(0),
				limit.StringFixed(2)),
		})
	}

	// Mandatory protective levels. The stop must sit at least
	// stopLossPct below entry, the target at least takeProfitPct above.
	one := decimal.NewFromInt(1)
	maxStop := rec.Price.Mul(one.Sub(settings.StopLossPct))
	if rec.StopLoss.GreaterThan(maxStop) {
		violations = append(violations, Violation{
			Rule: RuleProtectiveLevels,
			Detail: fmt.Sprintf("stop loss %s is tighter than required %s (%s%% below price)",
				rec.StopLoss.StringFixed(2), maxStop.StringFixed(2),
				settings.StopLossPct.Mul(decimal.NewFromInt(100)).StringFixed(0)),
		})
	}
	minTake := rec.Price.Mul(one.Add(settings.TakeProfitPct))
	if rec.TakeProfit.LessThan(minTake) {
		violations = append(violations, Violation{
			Rule: RuleProtectiveLevels,
			Detail: fmt.Sprintf("take profit %s is below required %s (%s%% above price)",
				rec.TakeProfit.StringFixed(2), minTake.StringFixed(2),
				settings.TakeProfitPct.Mul(decimal.NewFromInt(100)).StringFixed(0)),
		})
	}

	// Risk/reward: (takeProfit - price) / (price - stopLoss). A stop at
	// or above entry gives a non-positive denominator, which is an
	// automatic violation rather than a division error.
	downside := rec.Price.Sub(rec.StopLoss)
	if downside.LessThanOrEqual(decimal.Zero) {
		violations = append(violations, Violation{
			Rule:   RuleRiskReward,
			Detail: "stop loss at or above entry price",
		})
	} else {
		ratio := rec.TakeProfit.Sub(rec.Price).Div(downside)
		if ratio.LessThan(settings.MinRiskReward) {
			violations = append(violations, Violation{
				Rule: RuleRiskReward,
				Detail: fmt.Sprintf("risk/reward %s below minimum %s",
					ratio.StringFixed(2), settings.MinRiskReward.StringFixed(1)),
			})
		}
	}

	return violations
}

func (e *Engine) checkSell(rec models.Recommendation, snapshot models.PortfolioSnapshot) []Violation {
	// Inventory: cannot sell more shares than held.
	pos, ok := snapshot.Position(rec.Ticker)
	held := int64(0)
	if ok {
		held = pos.Shares
	}
	if rec.Quantity > held {
		return []Violation{{
			Rule:   RuleInventory,
			Detail: fmt.Sprintf("sell of %d shares exceeds held %d", rec.Quantity, held),
		}}
	}
	return nil
}
