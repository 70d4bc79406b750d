// Package oracle turns pool state and ranked opportunities into a trade
// proposal. The primary path consults an OpenAI-compatible chat-completions
// advisory through function calling; a deterministic rule-based fallback
// covers advisory outages and malformed replies.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/poolmind/poolmind/internal/cases"
	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/ledger"
)

// ErrNotConfigured is returned when no API key is set; callers should treat
// it like any other advisory failure and fall back.
var ErrNotConfigured = errors.New("oracle api key not configured")

// StrategyOracle proposes which opportunities to take and at what size.
type StrategyOracle interface {
	Propose(ctx context.Context, pool ledger.PoolMetrics, snap domain.Snapshot, opps []domain.Opportunity) (domain.Proposal, error)
}

// Config holds advisory connection settings. Zero fields take defaults.
// The secondary provider fields describe a second endpoint tried when the
// primary fails; any of them left empty inherits the primary's value, so
// setting only FallbackModel retries the same endpoint with another model.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string

	SecondaryBaseURL string
	SecondaryAPIKey  string

	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

const (
	defaultBaseURL   = "https://api.groq.com/openai/v1"
	defaultModel     = "llama3-70b-8192"
	defaultMaxTokens = 2000
	defaultTimeout   = 2 * time.Second
)

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// precedentLimit caps how many similar past trades are surfaced to the
// advisory.
const precedentLimit = 5

// recallPrecedent fetches similar past trades for prompt context. The case
// store is advisory, so every failure degrades to no precedent.
func recallPrecedent(ctx context.Context, memory cases.Store, pool ledger.PoolMetrics, opps []domain.Opportunity) []cases.Neighbor {
	if memory == nil {
		return nil
	}

	query := cases.Context{
		PoolValue:        pool.TotalPoolValue,
		ParticipantCount: pool.ParticipantCount,
	}
	for _, opp := range opps {
		if opp.SpreadPct > query.SpreadPct {
			query.SpreadPct = opp.SpreadPct
		}
	}

	neighbors, err := memory.QueryNearest(ctx, query, precedentLimit)
	if err != nil {
		return nil
	}
	return neighbors
}
