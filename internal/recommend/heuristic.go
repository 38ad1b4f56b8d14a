package recommend

import (
	"errors"
	"fmt"

	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

// ErrNoIndicators means the heuristic cannot run and the conservative
// default takes over.
var ErrNoIndicators = errors.New("recommend: indicator data unavailable")

const (
	heuristicOversold   = 30.0
	heuristicOverbought = 70.0
	heuristicConfidence = 60
)

// HeuristicRecommendation derives an action from simple RSI thresholds
// when the advisor is unavailable. Oversold buys up to the position size
// limit, overbought exits the whole holding, anything in between holds.
func HeuristicRecommendation(ac AnalysisContext) (models.Recommendation, error) {
	if ac.Indicators.RSI14 == nil {
		return models.Recommendation{}, ErrNoIndicators
	}
	rsi := *ac.Indicators.RSI14

	rec := models.Recommendation{
		Action:      models.ActionHold,
		Price:       ac.Price,
		RiskLevel:   models.RiskMedium,
		Confidence:  heuristicConfidence,
		TimeHorizon: "1-2 weeks",
		KeyFactors:  []string{fmt.Sprintf("RSI(14) %.1f", rsi)},
	}

	switch {
	case rsi < heuristicOversold:
		qty := heuristicBuyQuantity(ac)
		if qty <= 0 {
			rec.Reasoning = fmt.Sprintf("RSI %.1f signals oversold but no affordable quantity within limits", rsi)
			return rec, nil
		}
		one := decimal.NewFromInt(1)
		rec.Action = models.ActionBuy
		rec.Quantity = qty
		rec.StopLoss = ac.Price.Mul(one.Sub(ac.Settings.StopLossPct))
		rec.TakeProfit = ac.Price.Mul(one.Add(ac.Settings.TakeProfitPct))
		rec.Reasoning = fmt.Sprintf("RSI %.1f below %.0f: oversold, rule-based buy signal", rsi, heuristicOversold)

	case rsi > heuristicOverbought:
		pos, ok := ac.Snapshot.Position(ac.Ticker)
		if !ok || pos.Shares == 0 {
			rec.Reasoning = fmt.Sprintf("RSI %.1f signals overbought but nothing is held", rsi)
			return rec, nil
		}
		rec.Action = models.ActionSell
		rec.Quantity = pos.Shares
		rec.Reasoning = fmt.Sprintf("RSI %.1f above %.0f: overbought, rule-based exit signal", rsi, heuristicOverbought)

	default:
		rec.Reasoning = fmt.Sprintf("RSI %.1f in neutral range, no rule-based signal", rsi)
	}

	return rec, nil
}

// heuristicBuyQuantity sizes a buy at the position limit, bounded by
// available cash.
func heuristicBuyQuantity(ac AnalysisContext) int64 {
	if ac.Price.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	budget := ac.Settings.MaxPositionSizePct.Mul(ac.Snapshot.TotalValue)
	if held, ok := ac.Snapshot.Position(ac.Ticker); ok {
		budget = budget.Sub(held.MarketValue)
	}
	if ac.Snapshot.Cash.LessThan(budget) {
		budget = ac.Snapshot.Cash
	}
	return budget.Div(ac.Price).IntPart()
}
