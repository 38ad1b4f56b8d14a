package recommend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gazp_advisor/internal/ai"
	"gazp_advisor/internal/cache"
	"gazp_advisor/internal/config"
	"gazp_advisor/internal/models"
	"gazp_advisor/internal/risk"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrWrongUser rejects an operation on another user's recommendation.
	ErrWrongUser = errors.New("recommend: recommendation belongs to another user")
	// ErrNotPending means the recommendation already reached a terminal
	// status.
	ErrNotPending = errors.New("recommend: recommendation is not pending")
)

// RecommendationStore is the persistence slice the provider owns:
// creation of pending rows and the pending->rejected/expired
// transitions.
type RecommendationStore interface {
	InsertRecommendation(ctx context.Context, rec models.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (models.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id string, from, to models.RecommendationStatus) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	ListRecommendations(ctx context.Context, userID int64, limit int) ([]models.Recommendation, error)
}

// Provider runs the recommendation pipeline. GetRecommendation never
// fails because the advisor is down; only a failure to read portfolio
// state or to persist the outcome surfaces as an error.
type Provider struct {
	builder  *ContextBuilder
	advisor  ai.Completer
	cache    *cache.Cache[models.Recommendation]
	riskEng  *risk.Engine
	store    RecommendationStore
	policy   RetryPolicy
	ttl      time.Duration
	budget   time.Duration
	now      func() time.Time
}

func NewProvider(cfg *config.Config, builder *ContextBuilder, advisor ai.Completer, riskEng *risk.Engine, store RecommendationStore) *Provider {
	return &Provider{
		builder: builder,
		advisor: advisor,
		cache:   cache.New[models.Recommendation](),
		riskEng: riskEng,
		store:   store,
		policy: RetryPolicy{
			MaxAttempts: cfg.AIRetryMax,
			BaseDelay:   cfg.AIBackoffBase,
			CapDelay:    cfg.AIBackoffCap,
		},
		ttl:    cfg.RecommendationTTL,
		budget: cfg.RequestBudget,
		now:    time.Now,
	}
}

func cacheKey(userID int64, ticker string) string {
	return fmt.Sprintf("%d:%s", userID, ticker)
}

// GetRecommendation returns a pending recommendation for the user and
// ticker. A live cached one is reused; otherwise the advisor is called
// under single-flight, and on failure the chain degrades to the RSI
// heuristic and finally the conservative default. The result is always
// risk-checked and persisted before it is returned.
func (p *Provider) GetRecommendation(ctx context.Context, userID int64, ticker string) (models.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	ac, err := p.builder.Build(ctx, userID, ticker)
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("build analysis context: %w", err)
	}

	key := cacheKey(userID, ticker)

	// A cache hit is only good while the stored row is still pending: a
	// confirm, reject or expiry in the meantime must not keep serving the
	// stale proposal for the rest of the TTL.
	if cached, ok := p.cache.Get(key); ok {
		stored, err := p.store.GetRecommendation(ctx, cached.ID)
		switch {
		case err == nil && stored.Status == models.StatusPending && !stored.IsExpired(p.now()):
			return stored, nil
		case err == nil && stored.Status == models.StatusPending:
			if _, uerr := p.store.UpdateRecommendationStatus(ctx, stored.ID, models.StatusPending, models.StatusExpired); uerr != nil {
				return models.Recommendation{}, uerr
			}
		}
		p.cache.Invalidate(key)
	}

	rec, err := p.cache.GetOrCompute(key, p.ttl, func() (models.Recommendation, error) {
		advised, err := p.advise(ctx, ac)
		if err != nil {
			return models.Recommendation{}, err
		}
		return p.finalize(ctx, ac, advised)
	})
	if err == nil {
		return rec, nil
	}

	log.Printf("WARN: advisor path failed for user %d %s: %v, falling back to heuristic", userID, ticker, err)

	advised, herr := HeuristicRecommendation(ac)
	if herr != nil {
		log.Printf("WARN: heuristic unavailable for user %d %s: %v, falling back to conservative default", userID, ticker, herr)
		advised = conservativeDefault(ac)
	}
	// Fallback results are persisted but not cached, so the next call
	// retries the advisor in full.
	return p.finalize(ctx, ac, advised)
}

// advise calls the AI advisor with bounded retries. Non-retryable API
// errors and parse errors abort immediately; everything else backs off
// and retries until attempts or the deadline run out.
func (p *Provider) advise(ctx context.Context, ac AnalysisContext) (models.Recommendation, error) {
	userPrompt := ai.BuildUserPrompt(ai.PromptInput{
		Ticker:     ac.Ticker,
		Price:      ac.Price,
		Snapshot:   ac.Snapshot,
		Indicators: ac.Indicators,
		Clock:      ac.Clock,
		Settings:   ac.Settings,
		News:       ac.News,
		Now:        ac.Now,
	})

	var lastErr error
	for attempt := 0; attempt < p.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.policy.Wait(ctx, attempt-1); err != nil {
				return models.Recommendation{}, fmt.Errorf("deadline reached during backoff: %w", lastErr)
			}
		}

		completion, err := p.advisor.Complete(ctx, ai.SystemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			var apiErr *ai.APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return models.Recommendation{}, fmt.Errorf("advisor rejected request: %w", err)
			}
			if ctx.Err() != nil {
				return models.Recommendation{}, fmt.Errorf("deadline reached: %w", lastErr)
			}
			log.Printf("WARN: advisor attempt %d/%d failed: %v", attempt+1, p.policy.MaxAttempts, err)
			continue
		}

		rec, err := ParseRecommendation(completion.Content)
		if err != nil {
			// Malformed output will not be fixed by asking again.
			return models.Recommendation{}, err
		}
		log.Printf("INFO: advisor recommends %s %d %s @ %s (attempt %d, %d tokens)",
			rec.Action, rec.Quantity, ac.Ticker, rec.Price.StringFixed(2), attempt+1, completion.TokensUsed)
		return rec, nil
	}
	return models.Recommendation{}, fmt.Errorf("advisor failed after %d attempts: %w", p.policy.MaxAttempts, lastErr)
}

// conservativeDefault is the end of the fallback chain: do nothing,
// low risk, middling confidence.
func conservativeDefault(ac AnalysisContext) models.Recommendation {
	return models.Recommendation{
		Action:     models.ActionHold,
		Price:      ac.Price,
		Reasoning:  "advisor unavailable",
		RiskLevel:  models.RiskLow,
		Confidence: 50,
	}
}

// finalize risk-checks the proposal, downgrading it to HOLD on any
// violation, then assigns identity and lifecycle fields and persists the
// pending row.
func (p *Provider) finalize(ctx context.Context, ac AnalysisContext, rec models.Recommendation) (models.Recommendation, error) {
	result := p.riskEng.Validate(rec, ac.Snapshot, ac.Settings, ac.Clock)
	if !result.OK {
		reasons := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			reasons = append(reasons, v.String())
		}
		log.Printf("INFO: risk check downgrades %s %d %s to HOLD: %s",
			rec.Action, rec.Quantity, ac.Ticker, strings.Join(reasons, "; "))

		rec.Action = models.ActionHold
		rec.Quantity = 0
		rec.RiskLevel = models.RiskLow
		rec.StopLoss = decimal.Zero
		rec.TakeProfit = decimal.Zero
		rec.Reasoning = strings.TrimSpace(rec.Reasoning + " [risk check: " + strings.Join(reasons, "; ") + "]")
	}

	now := p.now()
	rec.ID = uuid.NewString()
	rec.UserID = ac.Snapshot.UserID
	rec.Ticker = ac.Ticker
	if rec.Price.IsZero() {
		rec.Price = ac.Price
	}
	rec.Status = models.StatusPending
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(p.ttl)

	// The request budget bounds advisor work, not the final persist: a
	// deadline burned on retries must not lose the fallback result.
	if err := p.store.InsertRecommendation(context.WithoutCancel(ctx), rec); err != nil {
		return models.Recommendation{}, fmt.Errorf("persist recommendation: %w", err)
	}
	return rec, nil
}

// Reject flips a pending recommendation to rejected on explicit user
// decline and drops it from the cache so the next request computes
// fresh.
func (p *Provider) Reject(ctx context.Context, recommendationID string, userID int64) error {
	rec, err := p.store.GetRecommendation(ctx, recommendationID)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return ErrWrongUser
	}

	if rec.Status == models.StatusPending && rec.IsExpired(p.now()) {
		// Lazy expiry on read keeps the audit trail honest even between
		// sweeps.
		if _, err := p.store.UpdateRecommendationStatus(ctx, recommendationID, models.StatusPending, models.StatusExpired); err != nil {
			return err
		}
		return ErrNotPending
	}

	swapped, err := p.store.UpdateRecommendationStatus(ctx, recommendationID, models.StatusPending, models.StatusRejected)
	if err != nil {
		return err
	}
	if !swapped {
		return ErrNotPending
	}
	p.cache.Invalidate(cacheKey(userID, rec.Ticker))
	return nil
}

// History returns the user's most recent recommendations, flipping any
// overdue pending rows to expired first.
func (p *Provider) History(ctx context.Context, userID int64, limit int) ([]models.Recommendation, error) {
	if _, err := p.store.ExpireOverdue(ctx, p.now()); err != nil {
		return nil, err
	}
	return p.store.ListRecommendations(ctx, userID, limit)
}

// SweepExpired flips all overdue pending recommendations to expired.
// Meant to be called periodically.
func (p *Provider) SweepExpired(ctx context.Context) (int64, error) {
	n, err := p.store.ExpireOverdue(ctx, p.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("INFO: expired %d overdue recommendations", n)
	}
	return n, nil
}
