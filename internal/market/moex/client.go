// Package moex reads quotes and candles from the MOEX ISS public API.
// ISS responds with a column-oriented JSON layout: each block carries a
// "columns" array naming the fields and a "data" array of rows.
package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gazp_advisor/internal/config"
	"gazp_advisor/internal/market"
	"gazp_advisor/internal/models"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://iss.moex.com/iss"

// Provider serves market data for TQBR-listed shares.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	openHour   int
	closeHour  int
}

var _ market.Provider = (*Provider)(nil)

func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		openHour:   cfg.SessionOpenHour,
		closeHour:  cfg.SessionCloseHour,
	}
}

// issTable is one column-oriented block from an ISS response.
type issTable struct {
	Columns []string            `json:"columns"`
	Data    [][]json.RawMessage `json:"data"`
}

// col returns the index of name in the table header, or -1.
func (t *issTable) col(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (p *Provider) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("moex request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("moex API error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("moex response decode failed: %w", err)
	}
	return nil
}

// CurrentPrice returns the last trade price for ticker on the TQBR board.
// Outside trading hours ISS reports a null LAST; the previous close
// (MARKETPRICE) is used instead.
func (p *Provider) CurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	url := fmt.Sprintf(
		"%s/engines/stock/markets/shares/boards/TQBR/securities/%s.json?iss.meta=off&iss.only=marketdata",
		p.baseURL, ticker)

	var payload struct {
		MarketData issTable `json:"marketdata"`
	}
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return decimal.Zero, err
	}
	if len(payload.MarketData.Data) == 0 {
		return decimal.Zero, fmt.Errorf("moex: no marketdata rows for %s", ticker)
	}

	row := payload.MarketData.Data[0]
	for _, colName := range []string{"LAST", "MARKETPRICE"} {
		idx := payload.MarketData.col(colName)
		if idx < 0 || idx >= len(row) {
			continue
		}
		var v *float64
		if err := json.Unmarshal(row[idx], &v); err != nil || v == nil || *v <= 0 {
			continue
		}
		return decimal.NewFromFloat(*v), nil
	}
	return decimal.Zero, fmt.Errorf("moex: no usable price for %s", ticker)
}

// DailyCandles returns up to limit daily bars for ticker, oldest first.
// ISS interval 24 selects daily resolution.
func (p *Provider) DailyCandles(ctx context.Context, ticker string, limit int) ([]models.Candle, error) {
	from := time.Now().In(config.MskLoc).AddDate(0, 0, -limit*2).Format("2006-01-02")
	url := fmt.Sprintf(
		"%s/engines/stock/markets/shares/boards/TQBR/securities/%s/candles.json?iss.meta=off&interval=24&from=%s",
		p.baseURL, ticker, from)

	var payload struct {
		Candles issTable `json:"candles"`
	}
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	tbl := &payload.Candles
	openIdx := tbl.col("open")
	highIdx := tbl.col("high")
	lowIdx := tbl.col("low")
	closeIdx := tbl.col("close")
	volIdx := tbl.col("volume")
	beginIdx := tbl.col("begin")
	if openIdx < 0 || closeIdx < 0 || beginIdx < 0 {
		return nil, fmt.Errorf("moex: candle columns missing for %s", ticker)
	}

	candles := make([]models.Candle, 0, len(tbl.Data))
	for _, row := range tbl.Data {
		c, err := parseCandleRow(row, openIdx, highIdx, lowIdx, closeIdx, volIdx, beginIdx)
		if err != nil {
			// Skip malformed rows rather than failing the whole history.
			continue
		}
		candles = append(candles, c)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func parseCandleRow(row []json.RawMessage, openIdx, highIdx, lowIdx, closeIdx, volIdx, beginIdx int) (models.Candle, error) {
	var c models.Candle

	num := func(idx int) (float64, error) {
		if idx < 0 || idx >= len(row) {
			return 0, fmt.Errorf("column out of range")
		}
		var v float64
		err := json.Unmarshal(row[idx], &v)
		return v, err
	}

	o, err := num(openIdx)
	if err != nil {
		return c, err
	}
	h, err := num(highIdx)
	if err != nil {
		return c, err
	}
	l, err := num(lowIdx)
	if err != nil {
		return c, err
	}
	cl, err := num(closeIdx)
	if err != nil {
		return c, err
	}
	vol, err := num(volIdx)
	if err != nil {
		return c, err
	}

	var begin string
	if err := json.Unmarshal(row[beginIdx], &begin); err != nil {
		return c, err
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", begin, config.MskLoc)
	if err != nil {
		return c, err
	}

	c.Time = ts
	c.Open = decimal.NewFromFloat(o)
	c.High = decimal.NewFromFloat(h)
	c.Low = decimal.NewFromFloat(l)
	c.Close = decimal.NewFromFloat(cl)
	c.Volume = int64(vol)
	return c, nil
}

// TechnicalIndicators computes the indicator set from the last 250 daily
// candles.
func (p *Provider) TechnicalIndicators(ctx context.Context, ticker string) (models.Indicators, error) {
	candles, err := p.DailyCandles(ctx, ticker, 250)
	if err != nil {
		return models.Indicators{}, err
	}
	return market.ComputeIndicators(candles), nil
}

// SessionClock derives the session state from local MOEX time. ISS has no
// clock endpoint; the exchange calendar is approximated as weekdays between
// the configured open and close hours.
func (p *Provider) SessionClock(ctx context.Context) (models.SessionClock, error) {
	now := time.Now().In(config.MskLoc)
	return market.SessionFromHours(now, p.openHour, p.closeHour, config.MskLoc), nil
}
