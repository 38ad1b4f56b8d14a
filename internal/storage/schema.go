package storage

// Schema is executed on every open; CREATE IF NOT EXISTS keeps it
// idempotent. Money columns are TEXT holding decimal strings so no
// precision is lost in the driver round-trip.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY,
	username   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolios (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER NOT NULL REFERENCES users(id),
	name            TEXT NOT NULL DEFAULT 'main',
	initial_capital TEXT NOT NULL,
	cash            TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id       INTEGER NOT NULL REFERENCES portfolios(id),
	ticker             TEXT NOT NULL,
	shares             INTEGER NOT NULL,
	avg_purchase_price TEXT NOT NULL,
	opened_at          TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	UNIQUE (portfolio_id, ticker)
);

CREATE TABLE IF NOT EXISTS recommendations (
	id           TEXT PRIMARY KEY,
	user_id      INTEGER NOT NULL REFERENCES users(id),
	ticker       TEXT NOT NULL,
	action       TEXT NOT NULL,
	quantity     INTEGER NOT NULL DEFAULT 0,
	price        TEXT NOT NULL,
	stop_loss    TEXT NOT NULL,
	take_profit  TEXT NOT NULL,
	reasoning    TEXT NOT NULL DEFAULT '',
	risk_level   TEXT NOT NULL,
	confidence   INTEGER NOT NULL,
	time_horizon TEXT NOT NULL DEFAULT '',
	key_factors  TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	expires_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id                TEXT PRIMARY KEY,
	portfolio_id      INTEGER NOT NULL REFERENCES portfolios(id),
	action            TEXT NOT NULL,
	ticker            TEXT NOT NULL,
	shares            INTEGER NOT NULL,
	price             TEXT NOT NULL,
	commission        TEXT NOT NULL,
	slippage          TEXT NOT NULL,
	total_amount      TEXT NOT NULL,
	recommendation_id TEXT REFERENCES recommendations(id),
	timestamp         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id               INTEGER PRIMARY KEY REFERENCES users(id),
	risk_profile          TEXT NOT NULL,
	max_position_size_pct TEXT NOT NULL,
	stop_loss_pct         TEXT NOT NULL,
	take_profit_pct       TEXT NOT NULL,
	min_risk_reward       TEXT NOT NULL,
	auto_confirm          INTEGER NOT NULL DEFAULT 0,
	updated_at            TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_user ON recommendations(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id, timestamp);
`
