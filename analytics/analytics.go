// Package analytics builds the agent leaderboard from the settlement ledger:
// per-agent trade counts, volume, and a demo profit figure. Results are
// cached briefly; when the store is empty or unavailable the leaderboard
// falls back to fixed demo data so the surface stays usable.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cygnuslabs/cygnus/audit"
	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/types"
)

// DefaultCacheTTL bounds how stale a served leaderboard may be.
const DefaultCacheTTL = 5 * time.Minute

// profitRate is the demo profit heuristic: a fixed share of settled volume.
var profitRate = decimal.NewFromFloat(0.2)

// Analytics computes agent rankings over the settlement ledger.
type Analytics struct {
	audit audit.Ledger
	log   logger.Logger
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[int]cacheEntry
}

type cacheEntry struct {
	at       time.Time
	rankings []types.AgentRanking
}

// Option configures Analytics.
type Option func(*Analytics)

func WithLogger(l logger.Logger) Option {
	return func(a *Analytics) { a.log = l }
}

// WithCacheTTL overrides the cache window; zero or negative disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(a *Analytics) { a.ttl = ttl }
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Analytics) { a.now = now }
}

// New builds an Analytics over the given ledger.
func New(auditLedger audit.Ledger, opts ...Option) *Analytics {
	a := &Analytics{
		audit: auditLedger,
		log:   logger.NoopLogger{},
		ttl:   DefaultCacheTTL,
		now:   time.Now,
		cache: make(map[int]cacheEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rankings returns up to limit agents ordered by trade count. Ledger
// failures and an empty ledger both degrade to demo data, never an error.
func (a *Analytics) Rankings(ctx context.Context, limit int) []types.AgentRanking {
	if limit <= 0 {
		limit = 10
	}

	if cached, ok := a.cached(limit); ok {
		return cached
	}

	rows, err := a.audit.Rankings(ctx, limit)
	if err != nil {
		a.log.Warn("rankings unavailable from ledger", logger.Fields{"error": err.Error()})
	}
	if len(rows) == 0 {
		demo := demoRankings(limit)
		a.store(limit, demo)
		return demo
	}

	rankings := make([]types.AgentRanking, 0, len(rows))
	for i, row := range rows {
		volume, err := decimal.NewFromString(row.Volume)
		if err != nil {
			volume = decimal.Zero
		}
		rankings = append(rankings, types.AgentRanking{
			Rank:        i + 1,
			AgentID:     row.SourceKey,
			Label:       fmt.Sprintf("Agent %d", i+1),
			TradesCount: row.Trades,
			ProfitXLM:   volume.Mul(profitRate).StringFixed(2),
			VolumeXLM:   volume.StringFixed(2),
		})
	}
	a.store(limit, rankings)
	return rankings
}

func (a *Analytics) cached(limit int) ([]types.AgentRanking, bool) {
	if a.ttl <= 0 {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[limit]
	if !ok || a.now().Sub(entry.at) >= a.ttl {
		return nil, false
	}
	return entry.rankings, true
}

func (a *Analytics) store(limit int, rankings []types.AgentRanking) {
	if a.ttl <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[limit] = cacheEntry{at: a.now(), rankings: rankings}
}

// demoRankings is the fixed leaderboard served when no settlement data
// exists yet.
func demoRankings(limit int) []types.AgentRanking {
	demo := []types.AgentRanking{
		{Rank: 1, AgentID: "GAGENT001XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX", Label: "Alpha Trader", TradesCount: 1247, ProfitXLM: "15230.50", VolumeXLM: "89200.00"},
		{Rank: 2, AgentID: "GAGENT002XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX", Label: "Beta Swapper", TradesCount: 982, ProfitXLM: "9876.25", VolumeXLM: "65400.00"},
		{Rank: 3, AgentID: "GAGENT003XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX", Label: "Gamma Arb", TradesCount: 756, ProfitXLM: "5432.10", VolumeXLM: "32100.00"},
		{Rank: 4, AgentID: "GAGENT004XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX", Label: "Delta Agent", TradesCount: 445, ProfitXLM: "2100.75", VolumeXLM: "18900.00"},
		{Rank: 5, AgentID: "GAGENT005XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX", Label: "Epsilon Runner", TradesCount: 198, ProfitXLM: "876.00", VolumeXLM: "5600.00"},
	}
	if limit < len(demo) {
		demo = demo[:limit]
	}
	return demo
}
