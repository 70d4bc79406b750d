package oracle

import (
	"fmt"

	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/ledger"
)

// Fallback is the deterministic rule-based strategy used when the advisory
// fails or is disabled. Proposals are flagged so the orchestrator can count
// them toward its circuit breaker.
type Fallback struct{}

// fallbackTier sizes exposure by pool value.
type fallbackTier struct {
	name     string
	maxOpps  int
	totalPct float64
}

func tierFor(poolValue float64) fallbackTier {
	switch {
	case poolValue < 10_000:
		return fallbackTier{name: "CONSERVATIVE", maxOpps: 1, totalPct: 0.02}
	case poolValue < 100_000:
		return fallbackTier{name: "MODERATE", maxOpps: 3, totalPct: 0.05}
	default:
		return fallbackTier{name: "AGGRESSIVE", maxOpps: 5, totalPct: 0.10}
	}
}

// Propose picks the top-ranked opportunities for the pool's tier and splits
// the tier's budget equally among them, truncating any leg that would exceed
// its opportunity's available volume. opps must already be ranked by profit
// descending, which is how the detector emits them.
func (Fallback) Propose(pool ledger.PoolMetrics, opps []domain.Opportunity) domain.Proposal {
	tier := tierFor(pool.TotalPoolValue)

	proposal := domain.Proposal{
		SelectedOpportunities: []int{},
		PositionSizes:         []float64{},
		RiskAssessment:        "MEDIUM",
		Reasoning:             fmt.Sprintf("Fallback %s strategy due to LLM failure", tier.name),
		Fallback:              true,
	}

	n := tier.maxOpps
	if len(opps) < n {
		n = len(opps)
	}
	if n == 0 {
		return proposal
	}

	perOpportunity := pool.TotalPoolValue * tier.totalPct / float64(n)
	if perOpportunity < 0 {
		perOpportunity = 0
	}

	for i := 0; i < n; i++ {
		size := perOpportunity
		if size > opps[i].MaxVolumeUSD {
			size = opps[i].MaxVolumeUSD
		}
		proposal.SelectedOpportunities = append(proposal.SelectedOpportunities, i)
		proposal.PositionSizes = append(proposal.PositionSizes, size)
	}
	return proposal
}
