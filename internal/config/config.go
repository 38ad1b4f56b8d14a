package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// MskLoc is the exchange time zone (MOEX trades in Moscow time). We use a
// fixed zone so the session math does not depend on host tzdata.
var MskLoc = time.FixedZone("MSK", 3*3600)

// Config carries every tunable of the engine. One instance is built at
// startup and passed down; there is no package-level state.
type Config struct {
	// AI advisor collaborator (AgentRouter, OpenAI-compatible).
	AIBaseURL      string
	AIAPIKey       string
	AIModel        string
	AIRetryMax     int           // attempts per recommendation, default 3
	AIBackoffBase  time.Duration // first retry delay, default 2s
	AIBackoffCap   time.Duration // backoff ceiling, default 8s
	AITimeout      time.Duration // single attempt timeout, default 20s
	RequestBudget  time.Duration // whole getRecommendation deadline, default 30s
	AITemperature  float64
	AIMaxTokens    int

	// Recommendation lifecycle.
	RecommendationTTL time.Duration // cache + expiry window, default 15m

	// Execution costs.
	CommissionRate float64 // fraction of notional, default 0.0003
	SlippageBps    float64 // basis points of notional, default 5

	// Session hours (exchange local time) and blackout margins.
	SessionOpenHour   int // default 7 (MOEX)
	SessionCloseHour  int // default 21
	BlackoutOpenMins  int // default 15
	BlackoutCloseMins int // default 15

	// Defaults applied when a user has no stored settings.
	DefaultMaxPositionPct float64 // default 0.30
	DefaultStopLossPct    float64 // default 0.05
	DefaultTakeProfitPct  float64 // default 0.10
	DefaultMinRiskReward  float64 // default 2.0
	DefaultCapital        float64 // default 100000

	// Collaborators and plumbing.
	MarketVenue   string // "moex" or "alpaca"
	DefaultTicker string // default "GAZP"
	NewsHeadlines string // pre-computed headlines fed to the advisor prompt
	DBPath        string
	MaxLogSizeMB  int64
	MaxLogBackups int
	SweepInterval time.Duration // expired-recommendation sweep, default 1m
}

// Load reads .env into the environment, validates required secrets and
// returns the assembled config. Missing optional values fall back to the
// documented defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	requiredSecretVars := map[string]bool{
		"AGENTROUTER_API_KEY": true,
	}

	var missing []string
	for key := range requiredSecretVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		// The engine still runs without the advisor (heuristic/default
		// fallbacks take over), so this is loud but not fatal.
		log.Printf("WARNING: Missing environment variables %v. AI advisor disabled, fallback chain only.", missing)
	}

	// Echo .env values, masking secrets to the last 4 characters.
	if envMap, err := godotenv.Read(); err == nil {
		log.Println("--- .env File Variables ---")
		for key, val := range envMap {
			if requiredSecretVars[key] {
				masked := "***"
				if len(val) > 4 {
					masked = "***" + val[len(val)-4:]
				}
				log.Printf("%s=%s", key, masked)
			} else {
				log.Printf("%s=%s", key, val)
			}
		}
		log.Println("---------------------------")
	}

	return &Config{
		AIBaseURL:     getEnvAsString("AGENTROUTER_BASE_URL", "https://agentrouter.org/v1"),
		AIAPIKey:      os.Getenv("AGENTROUTER_API_KEY"),
		AIModel:       getEnvAsString("AGENTROUTER_MODEL", "gpt-5"),
		AIRetryMax:    getEnvAsInt("AI_RETRY_ATTEMPTS", 3),
		AIBackoffBase: getEnvAsDuration("AI_BACKOFF_BASE", 2*time.Second),
		AIBackoffCap:  getEnvAsDuration("AI_BACKOFF_CAP", 8*time.Second),
		AITimeout:     getEnvAsDuration("AI_TIMEOUT", 20*time.Second),
		RequestBudget: getEnvAsDuration("RECOMMEND_BUDGET", 30*time.Second),
		AITemperature: getEnvAsFloat64("AI_TEMPERATURE", 0.3),
		AIMaxTokens:   getEnvAsInt("AI_MAX_TOKENS", 1500),

		RecommendationTTL: getEnvAsDuration("RECOMMENDATION_TTL", 15*time.Minute),

		CommissionRate: getEnvAsFloat64("COMMISSION_RATE", 0.0003),
		SlippageBps:    getEnvAsFloat64("SLIPPAGE_BPS", 5),

		SessionOpenHour:   getEnvAsInt("SESSION_OPEN_HOUR", 7),
		SessionCloseHour:  getEnvAsInt("SESSION_CLOSE_HOUR", 21),
		BlackoutOpenMins:  getEnvAsInt("BLACKOUT_OPEN_MINS", 15),
		BlackoutCloseMins: getEnvAsInt("BLACKOUT_CLOSE_MINS", 15),

		DefaultMaxPositionPct: getEnvAsFloat64("DEFAULT_MAX_POSITION_PCT", 0.30),
		DefaultStopLossPct:    getEnvAsFloat64("DEFAULT_STOP_LOSS_PCT", 0.05),
		DefaultTakeProfitPct:  getEnvAsFloat64("DEFAULT_TAKE_PROFIT_PCT", 0.10),
		DefaultMinRiskReward:  getEnvAsFloat64("DEFAULT_MIN_RISK_REWARD", 2.0),
		DefaultCapital:        getEnvAsFloat64("DEFAULT_INITIAL_CAPITAL", 100000),

		MarketVenue:   getEnvAsString("MARKET_VENUE", "moex"),
		DefaultTicker: getEnvAsString("DEFAULT_TICKER", "GAZP"),
		NewsHeadlines: getEnvAsString("NEWS_HEADLINES", ""),
		DBPath:        getEnvAsString("DB_PATH", "advisor.db"),
		MaxLogSizeMB:  int64(getEnvAsInt("MAX_LOG_SIZE_MB", 10)),
		MaxLogBackups: getEnvAsInt("MAX_LOG_BACKUPS", 3),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
	}
}
