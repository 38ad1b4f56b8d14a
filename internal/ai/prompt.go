package ai

import (
	"fmt"
	"strings"
	"time"

	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

// SystemPrompt pins the advisor role and the exact JSON contract the
// validator expects. Keep the field list in sync with the wire schema.
const SystemPrompt = `You are a disciplined trading advisor for a single-instrument simulated portfolio on the Moscow Exchange.

You must respond with a single JSON object and nothing else, using exactly this schema:
{
  "action": "BUY" | "SELL" | "HOLD",
  "quantity": <integer number of shares, 0 only when action is HOLD>,
  "price": <current price used for the decision>,
  "stop_loss": <stop price, below price for BUY>,
  "take_profit": <target price, above price for BUY>,
  "reasoning": "<short explanation of the decision>",
  "risk_level": "LOW" | "MEDIUM" | "HIGH",
  "confidence": <0-100>,
  "time_horizon": "<expected holding period, e.g. 1-2 weeks>",
  "key_factors": ["<factor>", ...]
}

Rules:
- Never recommend buying beyond the stated maximum position size.
- Never recommend selling more shares than the portfolio holds.
- For BUY, stop_loss must be below price and take_profit above it.
- When the signals are mixed or weak, prefer HOLD.`

// PromptInput is everything the user prompt is rendered from.
type PromptInput struct {
	Ticker     string
	Price      decimal.Decimal
	Snapshot   models.PortfolioSnapshot
	Indicators models.Indicators
	Clock      models.SessionClock
	Settings   models.UserSettings
	News       string
	Now        time.Time
}

// BuildUserPrompt renders the analysis context into the sectioned text
// prompt the model receives.
func BuildUserPrompt(in PromptInput) string {
	var b strings.Builder

	shares := int64(0)
	avgPrice := decimal.Zero
	if pos, ok := in.Snapshot.Position(in.Ticker); ok {
		shares = pos.Shares
		avgPrice = pos.AvgPurchasePrice
	}

	pnlPct := decimal.Zero
	if in.Snapshot.InitialCapital.IsPositive() {
		pnlPct = in.Snapshot.TotalPnL.Div(in.Snapshot.InitialCapital).Mul(decimal.NewFromInt(100))
	}

	fmt.Fprintf(&b, "CURRENT PORTFOLIO:\n")
	fmt.Fprintf(&b, "- Cash: %s RUB\n", in.Snapshot.Cash.StringFixed(2))
	fmt.Fprintf(&b, "- %s shares: %d\n", in.Ticker, shares)
	fmt.Fprintf(&b, "- Average purchase price: %s RUB\n", avgPrice.StringFixed(2))
	fmt.Fprintf(&b, "- Total value: %s RUB\n", in.Snapshot.TotalValue.StringFixed(2))
	fmt.Fprintf(&b, "- P&L: %s RUB (%s%%)\n", in.Snapshot.TotalPnL.StringFixed(2), pnlPct.StringFixed(2))

	fmt.Fprintf(&b, "\nMARKET DATA:\n")
	fmt.Fprintf(&b, "- Current price: %s RUB\n", in.Price.StringFixed(2))
	if in.Clock.IsOpen {
		fmt.Fprintf(&b, "- Session: open, %d min since open, %d min until close\n",
			in.Clock.MinutesSinceOpen, in.Clock.MinutesUntilClose)
	} else {
		fmt.Fprintf(&b, "- Session: closed\n")
	}

	fmt.Fprintf(&b, "\nTECHNICAL INDICATORS:\n")
	fmt.Fprintf(&b, "- RSI(14): %s\n", fmtIndicator(in.Indicators.RSI14))
	fmt.Fprintf(&b, "- MACD: %s (signal %s)\n",
		fmtIndicator(in.Indicators.MACD), fmtIndicator(in.Indicators.MACDSignal))
	fmt.Fprintf(&b, "- SMA(20): %s\n", fmtIndicator(in.Indicators.SMA20))
	fmt.Fprintf(&b, "- SMA(50): %s\n", fmtIndicator(in.Indicators.SMA50))
	fmt.Fprintf(&b, "- SMA(200): %s\n", fmtIndicator(in.Indicators.SMA200))
	fmt.Fprintf(&b, "- Avg volume (20d): %s\n", fmtIndicator(in.Indicators.VolumeAvg))

	news := strings.TrimSpace(in.News)
	if news == "" {
		news = "N/A"
	}
	fmt.Fprintf(&b, "\nRECENT NEWS:\n%s\n", news)

	hundred := decimal.NewFromInt(100)
	fmt.Fprintf(&b, "\nRISK SETTINGS:\n")
	fmt.Fprintf(&b, "- Risk profile: %s\n", in.Settings.RiskProfile)
	fmt.Fprintf(&b, "- Max position size: %s%% of portfolio\n",
		in.Settings.MaxPositionSizePct.Mul(hundred).StringFixed(0))
	fmt.Fprintf(&b, "- Stop loss distance: at least %s%%\n",
		in.Settings.StopLossPct.Mul(hundred).StringFixed(0))
	fmt.Fprintf(&b, "- Take profit distance: at least %s%%\n",
		in.Settings.TakeProfitPct.Mul(hundred).StringFixed(0))
	fmt.Fprintf(&b, "- Minimum risk/reward: %s\n", in.Settings.MinRiskReward.StringFixed(1))

	fmt.Fprintf(&b, "\nTIME: %s\n", in.Now.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "\nAnalyze the situation and give a trading recommendation following the rules.\n")

	return b.String()
}

func fmtIndicator(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}
