// Package risk gates trade proposals behind a 1-10 risk score. The score
// comes from an advisory when one is configured, from spread-width
// heuristics otherwise; either way the gate always produces a usable
// assessment and never edits the proposal it judges.
package risk

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/ledger"
)

// DefaultThreshold is the highest score that still clears the gate.
const DefaultThreshold = 7

// Assessor scores a proposal from 1 (lowest risk) to 10.
type Assessor interface {
	Assess(ctx context.Context, pool ledger.PoolMetrics, proposal domain.Proposal, opps []domain.Opportunity) (domain.Assessment, error)
}

// SpreadScore maps a spread percentage to a heuristic risk score. Wide
// spreads on crypto venues usually mean stale books or thin liquidity, so
// risk rises with spread.
func SpreadScore(spreadPct float64) int {
	switch {
	case spreadPct > 5.0:
		return 10
	case spreadPct > 2.0:
		return 8
	case spreadPct > 1.0:
		return 5
	default:
		return 1
	}
}

// Gate scores proposals and decides whether execution may proceed.
type Gate struct {
	assessor  Assessor
	threshold int
}

// NewGate builds a gate. assessor may be nil to run on heuristics alone;
// threshold values outside 1..10 fall back to the default.
func NewGate(assessor Assessor, threshold int) *Gate {
	if threshold < 1 || threshold > 10 {
		threshold = DefaultThreshold
	}
	return &Gate{assessor: assessor, threshold: threshold}
}

func (g *Gate) Threshold() int { return g.threshold }

// Assess scores the proposal. Advisory failures degrade to a neutral score
// of 5 so a cycle can always proceed to its gate decision.
func (g *Gate) Assess(ctx context.Context, pool ledger.PoolMetrics, proposal domain.Proposal, opps []domain.Opportunity) domain.Assessment {
	if g.assessor == nil {
		return heuristicAssessment(proposal, opps)
	}

	assessment, err := g.assessor.Assess(ctx, pool, proposal, opps)
	if err != nil {
		log.Warn().Err(err).Msg("risk advisory failed, using default assessment")
		return domain.Assessment{Score: 5, Recommendation: "unable to assess"}
	}
	return assessment
}

// Approve reports whether an assessment clears the gate.
func (g *Gate) Approve(a domain.Assessment) bool {
	return a.Score <= g.threshold
}

func heuristicAssessment(proposal domain.Proposal, opps []domain.Opportunity) domain.Assessment {
	score := 1
	for _, idx := range proposal.SelectedOpportunities {
		if idx < 0 || idx >= len(opps) {
			continue
		}
		if s := SpreadScore(opps[idx].SpreadPct); s > score {
			score = s
		}
	}
	return domain.Assessment{
		Score:          score,
		Recommendation: "scored from spread width, no advisory configured",
	}
}
