package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/ledger"
)

func rankedOpps(n int) []domain.Opportunity {
	opps := make([]domain.Opportunity, 0, n)
	for i := 0; i < n; i++ {
		opps = append(opps, domain.Opportunity{
			Symbol:       "BTC/USDT",
			BuyVenue:     "binance",
			SellVenue:    "kraken",
			SpreadPct:    3.0 - float64(i)*0.2,
			ProfitPct:    2.8 - float64(i)*0.2,
			MaxVolumeUSD: 1_000_000,
		})
	}
	return opps
}

func TestFallbackConservativeTier(t *testing.T) {
	pool := ledger.PoolMetrics{TotalPoolValue: 9999}
	p := Fallback{}.Propose(pool, rankedOpps(4))

	require.NoError(t, p.Validate(4))
	assert.True(t, p.Fallback)
	assert.Equal(t, []int{0}, p.SelectedOpportunities)
	require.Len(t, p.PositionSizes, 1)
	assert.InDelta(t, 9999*0.02, p.PositionSizes[0], 1e-9)
	assert.Contains(t, p.Reasoning, "CONSERVATIVE")
}

func TestFallbackModerateTierSplitsEqually(t *testing.T) {
	// Two opportunities in a 50k pool split the 5% budget evenly.
	pool := ledger.PoolMetrics{TotalPoolValue: 50000}
	p := Fallback{}.Propose(pool, rankedOpps(2))

	require.NoError(t, p.Validate(2))
	assert.True(t, p.Fallback)
	assert.Equal(t, []int{0, 1}, p.SelectedOpportunities)
	require.Len(t, p.PositionSizes, 2)
	assert.InDelta(t, 1250.0, p.PositionSizes[0], 1e-9)
	assert.InDelta(t, 1250.0, p.PositionSizes[1], 1e-9)
	assert.Contains(t, p.Reasoning, "MODERATE")
}

func TestFallbackAggressiveTierCapsAtFive(t *testing.T) {
	pool := ledger.PoolMetrics{TotalPoolValue: 500000}
	p := Fallback{}.Propose(pool, rankedOpps(7))

	require.NoError(t, p.Validate(7))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, p.SelectedOpportunities)
	for _, size := range p.PositionSizes {
		assert.InDelta(t, 10000.0, size, 1e-9)
	}
	assert.Contains(t, p.Reasoning, "AGGRESSIVE")
}

func TestFallbackTierBoundaries(t *testing.T) {
	p := Fallback{}.Propose(ledger.PoolMetrics{TotalPoolValue: 10000}, rankedOpps(5))
	assert.Contains(t, p.Reasoning, "MODERATE")

	p = Fallback{}.Propose(ledger.PoolMetrics{TotalPoolValue: 100000}, rankedOpps(5))
	assert.Contains(t, p.Reasoning, "AGGRESSIVE")
}

func TestFallbackTruncatesToAvailableVolume(t *testing.T) {
	pool := ledger.PoolMetrics{TotalPoolValue: 50000}
	opps := rankedOpps(2)
	opps[0].MaxVolumeUSD = 300

	p := Fallback{}.Propose(pool, opps)
	require.Len(t, p.PositionSizes, 2)
	assert.Equal(t, 300.0, p.PositionSizes[0])
	assert.InDelta(t, 1250.0, p.PositionSizes[1], 1e-9)
}

func TestFallbackWithNoOpportunities(t *testing.T) {
	p := Fallback{}.Propose(ledger.PoolMetrics{TotalPoolValue: 50000}, nil)

	require.NoError(t, p.Validate(0))
	assert.True(t, p.Fallback)
	assert.Empty(t, p.SelectedOpportunities)
	assert.Empty(t, p.PositionSizes)
}
