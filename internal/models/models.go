package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is a trade direction the advisor may recommend.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Valid reports whether a is one of the three known actions.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// RiskLevel grades a recommendation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// RiskProfile is a user's configured appetite.
type RiskProfile string

const (
	ProfileConservative RiskProfile = "conservative"
	ProfileModerate     RiskProfile = "moderate"
	ProfileAggressive   RiskProfile = "aggressive"
)

// User identifies an account holder. The ID is opaque to the engine
// (for the chat front-end it is the messenger user id).
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Portfolio holds a user's simulated cash balance. Positions reference it
// by ID; there are no in-memory object cycles.
type Portfolio struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Name           string          `json:"name"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Cash           decimal.Decimal `json:"cash"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Position is a holding in one instrument. A position with zero shares is
// never stored; it is deleted instead.
type Position struct {
	ID               int64           `json:"id"`
	PortfolioID      int64           `json:"portfolio_id"`
	Ticker           string          `json:"ticker"`
	Shares           int64           `json:"shares"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	OpenedAt         time.Time       `json:"opened_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MarketValue is shares times the given price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Shares))
}

// UnrealizedPnL is shares * (currentPrice - avgPurchasePrice).
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.AvgPurchasePrice).Mul(decimal.NewFromInt(p.Shares))
}

// UserSettings are the per-user risk limits the rule engine enforces.
type UserSettings struct {
	UserID             int64           `json:"user_id"`
	RiskProfile        RiskProfile     `json:"risk_profile"`
	MaxPositionSizePct decimal.Decimal `json:"max_position_size_pct"` // fraction of total value, default 0.30
	StopLossPct        decimal.Decimal `json:"stop_loss_pct"`         // minimum stop distance, default 0.05
	TakeProfitPct      decimal.Decimal `json:"take_profit_pct"`       // minimum target distance, default 0.10
	MinRiskReward      decimal.Decimal `json:"min_risk_reward"`       // default 2.0
	AutoConfirm        bool            `json:"auto_confirm"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DefaultSettings returns the engine defaults for a new user.
func DefaultSettings(userID int64) UserSettings {
	return UserSettings{
		UserID:             userID,
		RiskProfile:        ProfileModerate,
		MaxPositionSizePct: decimal.NewFromFloat(0.30),
		StopLossPct:        decimal.NewFromFloat(0.05),
		TakeProfitPct:      decimal.NewFromFloat(0.10),
		MinRiskReward:      decimal.NewFromInt(2),
	}
}

// Transaction is the immutable record of one applied trade.
type Transaction struct {
	ID               string          `json:"id"`
	PortfolioID      int64           `json:"portfolio_id"`
	Action           Action          `json:"action"`
	Ticker           string          `json:"ticker"`
	Shares           int64           `json:"shares"`
	Price            decimal.Decimal `json:"price"`
	Commission       decimal.Decimal `json:"commission"`
	Slippage         decimal.Decimal `json:"slippage"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	RecommendationID string          `json:"recommendation_id,omitempty"` // empty when manual
	Timestamp        time.Time       `json:"timestamp"`
}
