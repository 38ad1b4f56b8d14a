// Package storage is the persistence collaborator: a sqlite-backed store
// for users, portfolios, positions, transactions, recommendations and
// settings. Relations are plain foreign-key IDs; callers look entities up
// by ID rather than walking object graphs.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gazp_advisor/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("storage: not found")

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser creates a user together with their portfolio (funded at
// initialCapital) and the given risk settings, all in one transaction.
// Calling it for an existing user is an error.
func (s *Store) CreateUser(ctx context.Context, userID int64, username string, initialCapital decimal.Decimal, settings models.UserSettings) (models.Portfolio, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Portfolio{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`,
		userID, username, now,
	); err != nil {
		return models.Portfolio{}, fmt.Errorf("insert user: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO portfolios (user_id, name, initial_capital, cash, created_at, updated_at)
		 VALUES (?, 'main', ?, ?, ?, ?)`,
		userID, initialCapital.String(), initialCapital.String(), now, now,
	)
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("insert portfolio: %w", err)
	}
	portfolioID, err := res.LastInsertId()
	if err != nil {
		return models.Portfolio{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, risk_profile, max_position_size_pct, stop_loss_pct, take_profit_pct, min_risk_reward, auto_confirm, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, string(settings.RiskProfile),
		settings.MaxPositionSizePct.String(), settings.StopLossPct.String(),
		settings.TakeProfitPct.String(), settings.MinRiskReward.String(),
		boolToInt(settings.AutoConfirm), now,
	); err != nil {
		return models.Portfolio{}, fmt.Errorf("insert settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Portfolio{}, err
	}

	return models.Portfolio{
		ID:             portfolioID,
		UserID:         userID,
		Name:           "main",
		InitialCapital: initialCapital,
		Cash:           initialCapital,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetUser looks a user up by ID.
func (s *Store) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// GetPortfolioByUser returns the user's portfolio.
func (s *Store) GetPortfolioByUser(ctx context.Context, userID int64) (models.Portfolio, error) {
	var p models.Portfolio
	var initial, cash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, initial_capital, cash, created_at, updated_at
		 FROM portfolios WHERE user_id = ?`, userID,
	).Scan(&p.ID, &p.UserID, &p.Name, &initial, &cash, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Portfolio{}, ErrNotFound
	}
	if err != nil {
		return models.Portfolio{}, err
	}
	if p.InitialCapital, err = decimal.NewFromString(initial); err != nil {
		return models.Portfolio{}, fmt.Errorf("bad initial_capital %q: %w", initial, err)
	}
	if p.Cash, err = decimal.NewFromString(cash); err != nil {
		return models.Portfolio{}, fmt.Errorf("bad cash %q: %w", cash, err)
	}
	return p, nil
}

// GetPositions returns every position of a portfolio.
func (s *Store) GetPositions(ctx context.Context, portfolioID int64) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, portfolio_id, ticker, shares, avg_purchase_price, opened_at, updated_at
		 FROM positions WHERE portfolio_id = ? ORDER BY ticker`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var pos models.Position
		var avg string
		if err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.Ticker, &pos.Shares, &avg, &pos.OpenedAt, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		if pos.AvgPurchasePrice, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("bad avg_purchase_price %q: %w", avg, err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// GetPosition returns the portfolio's position in ticker, or ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, portfolioID int64, ticker string) (models.Position, error) {
	var pos models.Position
	var avg string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, portfolio_id, ticker, shares, avg_purchase_price, opened_at, updated_at
		 FROM positions WHERE portfolio_id = ? AND ticker = ?`, portfolioID, ticker,
	).Scan(&pos.ID, &pos.PortfolioID, &pos.Ticker, &pos.Shares, &avg, &pos.OpenedAt, &pos.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Position{}, ErrNotFound
	}
	if err != nil {
		return models.Position{}, err
	}
	if pos.AvgPurchasePrice, err = decimal.NewFromString(avg); err != nil {
		return models.Position{}, fmt.Errorf("bad avg_purchase_price %q: %w", avg, err)
	}
	return pos, nil
}

// ApplyTrade persists the outcome of one ledger mutation atomically: the
// portfolio's new cash, the position upsert (or delete when it reached
// zero shares) and the immutable transaction record.
func (s *Store) ApplyTrade(ctx context.Context, portfolio models.Portfolio, position models.Position, deletePosition bool, txn models.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE portfolios SET cash = ?, updated_at = ? WHERE id = ?`,
		portfolio.Cash.String(), time.Now().UTC(), portfolio.ID,
	); err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}

	if deletePosition {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM positions WHERE portfolio_id = ? AND ticker = ?`,
			position.PortfolioID, position.Ticker,
		); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO positions (portfolio_id, ticker, shares, avg_purchase_price, opened_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (portfolio_id, ticker)
			 DO UPDATE SET shares = excluded.shares, avg_purchase_price = excluded.avg_purchase_price, updated_at = excluded.updated_at`,
			position.PortfolioID, position.Ticker, position.Shares,
			position.AvgPurchasePrice.String(), position.OpenedAt, position.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
	}

	var recID interface{}
	if txn.RecommendationID != "" {
		recID = txn.RecommendationID
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, portfolio_id, action, ticker, shares, price, commission, slippage, total_amount, recommendation_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.PortfolioID, string(txn.Action), txn.Ticker, txn.Shares,
		txn.Price.String(), txn.Commission.String(), txn.Slippage.String(),
		txn.TotalAmount.String(), recID, txn.Timestamp,
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return tx.Commit()
}

// GetSettings returns the user's settings, or ErrNotFound.
func (s *Store) GetSettings(ctx context.Context, userID int64) (models.UserSettings, error) {
	var st models.UserSettings
	var profile string
	var maxPos, sl, tp, rr string
	var autoConfirm int
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, risk_profile, max_position_size_pct, stop_loss_pct, take_profit_pct, min_risk_reward, auto_confirm, updated_at
		 FROM user_settings WHERE user_id = ?`, userID,
	).Scan(&st.UserID, &profile, &maxPos, &sl, &tp, &rr, &autoConfirm, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserSettings{}, ErrNotFound
	}
	if err != nil {
		return models.UserSettings{}, err
	}
	st.RiskProfile = models.RiskProfile(profile)
	st.AutoConfirm = autoConfirm != 0
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&st.MaxPositionSizePct, maxPos},
		{&st.StopLossPct, sl},
		{&st.TakeProfitPct, tp},
		{&st.MinRiskReward, rr},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return models.UserSettings{}, fmt.Errorf("bad settings value %q: %w", f.raw, err)
		}
	}
	return st, nil
}

// SaveSettings upserts the user's settings.
func (s *Store) SaveSettings(ctx context.Context, st models.UserSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, risk_profile, max_position_size_pct, stop_loss_pct, take_profit_pct, min_risk_reward, auto_confirm, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   risk_profile = excluded.risk_profile,
		   max_position_size_pct = excluded.max_position_size_pct,
		   stop_loss_pct = excluded.stop_loss_pct,
		   take_profit_pct = excluded.take_profit_pct,
		   min_risk_reward = excluded.min_risk_reward,
		   auto_confirm = excluded.auto_confirm,
		   updated_at = excluded.updated_at`,
		st.UserID, string(st.RiskProfile),
		st.MaxPositionSizePct.String(), st.StopLossPct.String(),
		st.TakeProfitPct.String(), st.MinRiskReward.String(),
		boolToInt(st.AutoConfirm), time.Now().UTC(),
	)
	return err
}

// InsertRecommendation stores a freshly created recommendation.
func (s *Store) InsertRecommendation(ctx context.Context, rec models.Recommendation) error {
	factors, err := json.Marshal(rec.KeyFactors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recommendations (id, user_id, ticker, action, quantity, price, stop_loss, take_profit, reasoning, risk_level, confidence, time_horizon, key_factors, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Ticker, string(rec.Action), rec.Quantity,
		rec.Price.String(), rec.StopLoss.String(), rec.TakeProfit.String(),
		rec.Reasoning, string(rec.RiskLevel), rec.Confidence,
		rec.TimeHorizon, string(factors), string(rec.Status),
		rec.CreatedAt, rec.ExpiresAt,
	)
	return err
}

// GetRecommendation looks a recommendation up by ID.
func (s *Store) GetRecommendation(ctx context.Context, id string) (models.Recommendation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, ticker, action, quantity, price, stop_loss, take_profit, reasoning, risk_level, confidence, time_horizon, key_factors, status, created_at, expires_at
		 FROM recommendations WHERE id = ?`, id)
	rec, err := scanRecommendation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Recommendation{}, ErrNotFound
	}
	return rec, err
}

// UpdateRecommendationStatus performs the compare-and-swap transition
// from -> to. It reports whether this caller won the swap.
func (s *Store) UpdateRecommendationStatus(ctx context.Context, id string, from, to models.RecommendationStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ExpireOverdue flips every pending recommendation whose window has passed
// to expired, returning how many rows changed. Used by the periodic sweep.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET status = ? WHERE status = ? AND expires_at < ?`,
		string(models.StatusExpired), string(models.StatusPending), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListRecommendations returns the user's latest recommendations, newest
// first.
func (s *Store) ListRecommendations(ctx context.Context, userID int64, limit int) ([]models.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, ticker, action, quantity, price, stop_loss, take_profit, reasoning, risk_level, confidence, time_horizon, key_factors, status, created_at, expires_at
		 FROM recommendations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListTransactions returns the portfolio's latest transactions, newest
// first.
func (s *Store) ListTransactions(ctx context.Context, portfolioID int64, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, portfolio_id, action, ticker, shares, price, commission, slippage, total_amount, recommendation_id, timestamp
		 FROM transactions WHERE portfolio_id = ? ORDER BY timestamp DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var action, price, commission, slippage, total string
		var recID sql.NullString
		if err := rows.Scan(&t.ID, &t.PortfolioID, &action, &t.Ticker, &t.Shares, &price, &commission, &slippage, &total, &recID, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Action = models.Action(action)
		t.RecommendationID = recID.String
		for _, f := range []struct {
			dst *decimal.Decimal
			raw string
		}{
			{&t.Price, price}, {&t.Commission, commission},
			{&t.Slippage, slippage}, {&t.TotalAmount, total},
		} {
			var err error
			if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
				return nil, fmt.Errorf("bad transaction value %q: %w", f.raw, err)
			}
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner) (models.Recommendation, error) {
	var rec models.Recommendation
	var action, riskLevel, status string
	var price, sl, tp string
	var factors string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Ticker, &action, &rec.Quantity,
		&price, &sl, &tp, &rec.Reasoning, &riskLevel, &rec.Confidence,
		&rec.TimeHorizon, &factors, &status, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		return models.Recommendation{}, err
	}
	rec.Action = models.Action(action)
	rec.RiskLevel = models.RiskLevel(riskLevel)
	rec.Status = models.RecommendationStatus(status)

	var err error
	if rec.Price, err = decimal.NewFromString(price); err != nil {
		return models.Recommendation{}, fmt.Errorf("bad price %q: %w", price, err)
	}
	if rec.StopLoss, err = decimal.NewFromString(sl); err != nil {
		return models.Recommendation{}, fmt.Errorf("bad stop_loss %q: %w", sl, err)
	}
	if rec.TakeProfit, err = decimal.NewFromString(tp); err != nil {
		return models.Recommendation{}, fmt.Errorf("bad take_profit %q: %w", tp, err)
	}
	if err := json.Unmarshal([]byte(factors), &rec.KeyFactors); err != nil {
		return models.Recommendation{}, fmt.Errorf("bad key_factors %q: %w", factors, err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
