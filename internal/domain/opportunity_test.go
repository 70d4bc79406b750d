package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(quotes map[string]map[string]Quote) Snapshot {
	return Snapshot{Quotes: quotes, Timestamp: time.Now()}
}

func TestScanSingleVenueYieldsNothing(t *testing.T) {
	det := NewDetector(0.5, nil)

	snap := snapshotOf(map[string]map[string]Quote{
		"BTC/USDT": {
			"binance": {Bid: 49000, Ask: 49100, Volume: 10},
		},
	})

	opps := det.Scan(snap)
	assert.Empty(t, opps, "one venue cannot cross against itself")
}

func TestScanSingleCleanOpportunity(t *testing.T) {
	det := NewDetector(0.5, nil)

	snap := snapshotOf(map[string]map[string]Quote{
		"BTC/USDT": {
			"A": {Bid: 49000, Ask: 49100, Volume: 10},
			"B": {Bid: 49900, Ask: 50000, Volume: 8},
		},
	})

	opps := det.Scan(snap)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "BTC/USDT", opp.Symbol)
	assert.Equal(t, "A", opp.BuyVenue)
	assert.Equal(t, "B", opp.SellVenue)
	assert.Equal(t, 49100.0, opp.BuyPrice)
	assert.Equal(t, 49900.0, opp.SellPrice)
	assert.InDelta(t, 1.629, opp.SpreadPct, 0.001)
	assert.InDelta(t, 392800.0, opp.MaxVolumeUSD, 1e-9, "min(8,10) * 49100")
}

func TestScanSoundness(t *testing.T) {
	det := NewDetector(0.5, nil)

	snap := snapshotOf(map[string]map[string]Quote{
		"BTC/USDT": {
			"A": {Bid: 49000, Ask: 49100, Volume: 10},
			"B": {Bid: 49900, Ask: 50000, Volume: 8},
			"C": {Bid: 49500, Ask: 49550, Volume: 5},
		},
		"ETH/USDT": {
			"A": {Bid: 3000, Ask: 3001, Volume: 50},
			"B": {Bid: 3062, Ask: 3063, Volume: 40},
		},
	})

	opps := det.Scan(snap)
	require.NotEmpty(t, opps)

	for _, opp := range opps {
		assert.Greater(t, opp.SellPrice, opp.BuyPrice)
		assert.NotEqual(t, opp.BuyVenue, opp.SellVenue)
		assert.Greater(t, opp.SpreadPct, det.MinSpreadPct())
	}
}

func TestScanRankingAndFilter(t *testing.T) {
	det := NewDetector(0.5, nil)

	// A->B spreads: BTC 100*(49900-49100)/49100 = 1.629%,
	// ETH 100*(3062-3001)/3001 = 2.033%, ADA 100*(0.5042-0.5007)/0.5007 = 0.699%.
	snap := snapshotOf(map[string]map[string]Quote{
		"ETH/USDT": {
			"A": {Bid: 3000, Ask: 3001, Volume: 50},
			"B": {Bid: 3062, Ask: 3063, Volume: 40},
		},
		"ADA/USDT": {
			"A": {Bid: 0.5000, Ask: 0.5007, Volume: 100000},
			"B": {Bid: 0.5042, Ask: 0.5050, Volume: 80000},
		},
	})

	opps := det.Scan(snap)
	require.Len(t, opps, 2)

	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].ProfitPct, opps[i].ProfitPct, "ranking must be non-increasing")
	}
	assert.Equal(t, "ETH/USDT", opps[0].Symbol)
	assert.Equal(t, "ADA/USDT", opps[1].Symbol)

	filtered := Filter(opps, 1.0, 0)
	require.Len(t, filtered, 1)
	assert.Equal(t, "ETH/USDT", filtered[0].Symbol)
}

func TestScanTieBreakDeterminism(t *testing.T) {
	det := NewDetector(0.5, nil)

	// Two symbols with identical spreads; order must be symbol then venue.
	snap := snapshotOf(map[string]map[string]Quote{
		"ETH/USDT": {
			"A": {Bid: 100, Ask: 100, Volume: 1},
			"B": {Bid: 102, Ask: 102, Volume: 1},
		},
		"BTC/USDT": {
			"A": {Bid: 100, Ask: 100, Volume: 1},
			"B": {Bid: 102, Ask: 102, Volume: 1},
		},
	})

	first := det.Scan(snap)
	for i := 0; i < 10; i++ {
		again := det.Scan(snap)
		require.Equal(t, first, again, "scan order must not depend on map iteration")
	}
	require.Len(t, first, 2)
	assert.Equal(t, "BTC/USDT", first[0].Symbol)
	assert.Equal(t, "ETH/USDT", first[1].Symbol)
}

func TestScanSkipsUnusableSides(t *testing.T) {
	det := NewDetector(0.5, nil)

	snap := snapshotOf(map[string]map[string]Quote{
		"BTC/USDT": {
			"A": {Bid: 0, Ask: 49100, Volume: 10},
			"B": {Bid: 49900, Ask: 0, Volume: 8},
		},
	})

	opps := det.Scan(snap)
	require.Len(t, opps, 1, "zero-priced sides are ignored, not treated as levels")
	assert.Equal(t, "A", opps[0].BuyVenue)
	assert.Equal(t, "B", opps[0].SellVenue)
}

func TestFeeModelInjection(t *testing.T) {
	noFee := NewDetector(0.5, FlatFee(0))

	snap := snapshotOf(map[string]map[string]Quote{
		"BTC/USDT": {
			"A": {Bid: 49000, Ask: 49100, Volume: 10},
			"B": {Bid: 49900, Ask: 50000, Volume: 8},
		},
	})

	opps := noFee.Scan(snap)
	require.Len(t, opps, 1)
	assert.Equal(t, opps[0].SpreadPct, opps[0].ProfitPct)

	withFee := NewDetector(0.5, nil).Scan(snap)
	require.Len(t, withFee, 1)
	assert.InDelta(t, opps[0].SpreadPct-DefaultFeePct, withFee[0].ProfitPct, 1e-12)
}

func TestProposalValidate(t *testing.T) {
	tests := []struct {
		name     string
		proposal Proposal
		count    int
		wantErr  bool
	}{
		{
			name:     "valid",
			proposal: Proposal{SelectedOpportunities: []int{0, 2}, PositionSizes: []float64{100, 200}},
			count:    3,
		},
		{
			name:     "length mismatch",
			proposal: Proposal{SelectedOpportunities: []int{0}, PositionSizes: []float64{100, 200}},
			count:    3,
			wantErr:  true,
		},
		{
			name:     "index out of range",
			proposal: Proposal{SelectedOpportunities: []int{3}, PositionSizes: []float64{100}},
			count:    3,
			wantErr:  true,
		},
		{
			name:     "negative index",
			proposal: Proposal{SelectedOpportunities: []int{-1}, PositionSizes: []float64{100}},
			count:    3,
			wantErr:  true,
		},
		{
			name:     "duplicate index",
			proposal: Proposal{SelectedOpportunities: []int{1, 1}, PositionSizes: []float64{100, 100}},
			count:    3,
			wantErr:  true,
		},
		{
			name:     "negative size",
			proposal: Proposal{SelectedOpportunities: []int{1}, PositionSizes: []float64{-5}},
			count:    3,
			wantErr:  true,
		},
		{
			name:     "empty is valid",
			proposal: Proposal{},
			count:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.proposal.Validate(tt.count)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSnapshotHelpers(t *testing.T) {
	snap := snapshotOf(map[string]map[string]Quote{
		"BTC/USDT": {"A": {Bid: 1, Ask: 2, Volume: 3}},
		"ETH/USDT": {},
	})

	q, ok := snap.At("BTC/USDT", "A")
	require.True(t, ok)
	assert.True(t, q.Valid())

	_, ok = snap.At("BTC/USDT", "Z")
	assert.False(t, ok)
	_, ok = snap.At("XRP/USDT", "A")
	assert.False(t, ok)

	assert.False(t, snap.Empty())
	assert.Equal(t, 1, snap.QuoteCount())
	assert.True(t, Snapshot{}.Empty())
}
