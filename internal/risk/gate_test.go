package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/ledger"
)

type stubAssessor struct {
	assessment domain.Assessment
	err        error
}

func (s stubAssessor) Assess(context.Context, ledger.PoolMetrics, domain.Proposal, []domain.Opportunity) (domain.Assessment, error) {
	return s.assessment, s.err
}

func TestSpreadScoreTiers(t *testing.T) {
	tests := []struct {
		spread float64
		want   int
	}{
		{0.3, 1},
		{1.0, 1},
		{1.01, 5},
		{2.0, 5},
		{2.5, 8},
		{5.0, 8},
		{5.1, 10},
		{12.0, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SpreadScore(tt.spread), "spread %.2f", tt.spread)
	}
}

func TestGatePassesThroughAdvisoryAssessment(t *testing.T) {
	want := domain.Assessment{Score: 3, Recommendation: "small and liquid, proceed"}
	g := NewGate(stubAssessor{assessment: want}, 0)

	got := g.Assess(context.Background(), ledger.PoolMetrics{}, domain.Proposal{}, nil)
	assert.Equal(t, want, got)
	assert.True(t, g.Approve(got))
}

func TestGateDefaultsWhenAdvisoryFails(t *testing.T) {
	g := NewGate(stubAssessor{err: errors.New("timeout")}, 0)

	got := g.Assess(context.Background(), ledger.PoolMetrics{}, domain.Proposal{}, nil)
	assert.Equal(t, 5, got.Score)
	assert.Equal(t, "unable to assess", got.Recommendation)
	assert.True(t, g.Approve(got))
}

func TestGateHeuristicUsesWorstSelectedSpread(t *testing.T) {
	g := NewGate(nil, 0)
	opps := []domain.Opportunity{
		{SpreadPct: 0.8},
		{SpreadPct: 2.6},
		{SpreadPct: 9.0},
	}

	proposal := domain.Proposal{SelectedOpportunities: []int{0, 1}}
	got := g.Assess(context.Background(), ledger.PoolMetrics{}, proposal, opps)
	assert.Equal(t, 8, got.Score)

	// Out-of-range indices are ignored rather than scored.
	proposal = domain.Proposal{SelectedOpportunities: []int{0, 17}}
	got = g.Assess(context.Background(), ledger.PoolMetrics{}, proposal, opps)
	assert.Equal(t, 1, got.Score)
}

func TestGateThresholdVeto(t *testing.T) {
	g := NewGate(nil, 0)
	assert.Equal(t, DefaultThreshold, g.Threshold())
	assert.True(t, g.Approve(domain.Assessment{Score: 7}))
	assert.False(t, g.Approve(domain.Assessment{Score: 8}))
	assert.False(t, g.Approve(domain.Assessment{Score: 9}))

	strict := NewGate(nil, 3)
	assert.True(t, strict.Approve(domain.Assessment{Score: 3}))
	assert.False(t, strict.Approve(domain.Assessment{Score: 4}))

	loose := NewGate(nil, 42)
	assert.Equal(t, DefaultThreshold, loose.Threshold())
}
