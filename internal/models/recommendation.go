package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecommendationStatus is the lifecycle state of a recommendation.
// pending is the only non-terminal state.
type RecommendationStatus string

const (
	StatusPending   RecommendationStatus = "pending"
	StatusConfirmed RecommendationStatus = "confirmed"
	StatusRejected  RecommendationStatus = "rejected"
	StatusExpired   RecommendationStatus = "expired"
)

// Recommendation is a risk-validated trade proposal surfaced to the user.
// Status transitions are owned by exactly one component each: the provider
// creates pending rows and flips pending->rejected/expired, the executor
// owns pending->confirmed.
type Recommendation struct {
	ID          string               `json:"id"`
	UserID      int64                `json:"user_id"`
	Ticker      string               `json:"ticker"`
	Action      Action               `json:"action"`
	Quantity    int64                `json:"quantity"` // shares, required >0 unless HOLD
	Price       decimal.Decimal      `json:"price"`
	StopLoss    decimal.Decimal      `json:"stop_loss"`
	TakeProfit  decimal.Decimal      `json:"take_profit"`
	Reasoning   string               `json:"reasoning"`
	RiskLevel   RiskLevel            `json:"risk_level"`
	Confidence  int                  `json:"confidence"` // 0-100
	TimeHorizon string               `json:"time_horizon,omitempty"`
	KeyFactors  []string             `json:"key_factors,omitempty"`
	Status      RecommendationStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
}

// IsExpired reports whether the recommendation is past its validity window.
func (r Recommendation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Notional is quantity times price, before commission and slippage.
func (r Recommendation) Notional() decimal.Decimal {
	return r.Price.Mul(decimal.NewFromInt(r.Quantity))
}
