package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

// ParseError reports which field of the advisor output failed validation.
// It is terminal for the attempt; the fallback chain takes over.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid advisor response: field %q: %s", e.Field, e.Reason)
}

// wireRecommendation mirrors the JSON contract the advisor is prompted
// to produce.
type wireRecommendation struct {
	Action      string           `json:"action"`
	Quantity    *int64           `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
	StopLoss    *decimal.Decimal `json:"stop_loss"`
	TakeProfit  *decimal.Decimal `json:"take_profit"`
	Reasoning   string           `json:"reasoning"`
	RiskLevel   string           `json:"risk_level"`
	Confidence  *int             `json:"confidence"`
	TimeHorizon string           `json:"time_horizon"`
	KeyFactors  []string         `json:"key_factors"`
}

// ParseRecommendation turns raw advisor text into a typed recommendation.
// It tries a strict JSON decode first, then tolerant recovery: stripping
// code fences and extracting the first balanced object by brace counting.
func ParseRecommendation(raw string) (models.Recommendation, error) {
	var wire wireRecommendation

	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		extracted, ok := extractJSONObject(raw)
		if !ok {
			return models.Recommendation{}, &ParseError{Field: "body", Reason: "no JSON object found"}
		}
		if err := json.Unmarshal([]byte(extracted), &wire); err != nil {
			return models.Recommendation{}, &ParseError{Field: "body", Reason: err.Error()}
		}
	}

	return validateWire(wire)
}

// extractJSONObject strips fence markers and returns the first balanced
// {...} substring.
func extractJSONObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func validateWire(wire wireRecommendation) (models.Recommendation, error) {
	action := models.Action(strings.ToUpper(strings.TrimSpace(wire.Action)))
	if !action.Valid() {
		return models.Recommendation{}, &ParseError{Field: "action", Reason: fmt.Sprintf("unknown value %q", wire.Action)}
	}

	if action != models.ActionHold {
		if wire.Quantity == nil {
			return models.Recommendation{}, &ParseError{Field: "quantity", Reason: "missing"}
		}
		if *wire.Quantity <= 0 {
			return models.Recommendation{}, &ParseError{Field: "quantity", Reason: "must be positive for a trade"}
		}
	}
	quantity := int64(0)
	if wire.Quantity != nil {
		if *wire.Quantity < 0 {
			return models.Recommendation{}, &ParseError{Field: "quantity", Reason: "negative"}
		}
		quantity = *wire.Quantity
	}

	if wire.Price == nil {
		return models.Recommendation{}, &ParseError{Field: "price", Reason: "missing"}
	}
	if wire.Price.LessThanOrEqual(decimal.Zero) {
		return models.Recommendation{}, &ParseError{Field: "price", Reason: "must be positive"}
	}

	if wire.Confidence == nil {
		return models.Recommendation{}, &ParseError{Field: "confidence", Reason: "missing"}
	}
	if *wire.Confidence < 0 || *wire.Confidence > 100 {
		return models.Recommendation{}, &ParseError{Field: "confidence", Reason: "outside [0,100]"}
	}

	riskLevel := models.RiskLevel(strings.ToUpper(strings.TrimSpace(wire.RiskLevel)))
	if !riskLevel.Valid() {
		return models.Recommendation{}, &ParseError{Field: "risk_level", Reason: fmt.Sprintf("unknown value %q", wire.RiskLevel)}
	}

	rec := models.Recommendation{
		Action:      action,
		Quantity:    quantity,
		Price:       *wire.Price,
		Reasoning:   strings.TrimSpace(wire.Reasoning),
		RiskLevel:   riskLevel,
		Confidence:  *wire.Confidence,
		TimeHorizon: strings.TrimSpace(wire.TimeHorizon),
		KeyFactors:  wire.KeyFactors,
	}
	if wire.StopLoss != nil {
		rec.StopLoss = *wire.StopLoss
	}
	if wire.TakeProfit != nil {
		rec.TakeProfit = *wire.TakeProfit
	}

	// Protective levels must bracket the price on the loss-limiting side.
	// For BUY the stop sits below and the target above; SELL exits an
	// existing position, so no bracket is required.
	if action == models.ActionBuy {
		if wire.StopLoss == nil || rec.StopLoss.LessThanOrEqual(decimal.Zero) {
			return models.Recommendation{}, &ParseError{Field: "stop_loss", Reason: "missing or non-positive"}
		}
		if wire.TakeProfit == nil || rec.TakeProfit.LessThanOrEqual(decimal.Zero) {
			return models.Recommendation{}, &ParseError{Field: "take_profit", Reason: "missing or non-positive"}
		}
		if rec.StopLoss.GreaterThanOrEqual(rec.Price) {
			return models.Recommendation{}, &ParseError{Field: "stop_loss", Reason: "must be below price for BUY"}
		}
		if rec.TakeProfit.LessThanOrEqual(rec.Price) {
			return models.Recommendation{}, &ParseError{Field: "take_profit", Reason: "must be above price for BUY"}
		}
	}

	return rec, nil
}
