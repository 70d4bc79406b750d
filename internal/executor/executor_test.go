package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolmind/poolmind/internal/domain"
)

func testOpp() domain.Opportunity {
	return domain.Opportunity{
		Symbol:       "BTC/USDT",
		BuyVenue:     "binance",
		SellVenue:    "kraken",
		BuyPrice:     49100,
		SellPrice:    49900,
		SpreadPct:    100 * (49900 - 49100) / 49100.0,
		MaxVolumeUSD: 392800,
	}
}

func TestZeroSlippageProfitIdentity(t *testing.T) {
	sim := NewSimulator(0.2, 1).WithSlippage(func() float64 { return 0 })
	opp := testOpp()
	sizeUSD := 1000.0

	rec := sim.Execute(context.Background(), opp, sizeUSD, nil)

	want := sizeUSD * opp.SpreadPct / 100 * (1 - 0.002)
	assert.InDelta(t, want, rec.ProfitUSD, 1e-9)
	assert.True(t, rec.Success)

	assert.Equal(t, opp.BuyPrice, rec.ActualBuyPrice)
	assert.Equal(t, opp.SellPrice, rec.ActualSellPrice)
	assert.InDelta(t, sizeUSD, rec.CostUSD, 1e-9)
	assert.InDelta(t, sizeUSD/opp.BuyPrice, rec.AssetAmount, 1e-12)
}

func TestZeroFeeKeepsGrossProfit(t *testing.T) {
	sim := NewSimulator(0, 1).WithSlippage(func() float64 { return 0 })
	rec := sim.Execute(context.Background(), testOpp(), 1000, nil)

	gross := rec.RevenueUSD - rec.CostUSD
	assert.InDelta(t, gross, rec.ProfitUSD, 1e-12)
}

func TestSlippageBounds(t *testing.T) {
	sim := NewSimulator(0.2, 42)
	opp := testOpp()

	ideal := 1000 * opp.SpreadPct / 100 * (1 - 0.002)
	for i := 0; i < 200; i++ {
		rec := sim.Execute(context.Background(), opp, 1000, nil)

		assert.GreaterOrEqual(t, rec.BuySlippagePct, 0.0)
		assert.Less(t, rec.BuySlippagePct, 0.2)
		assert.GreaterOrEqual(t, rec.SellSlippagePct, 0.0)
		assert.Less(t, rec.SellSlippagePct, 0.2)

		assert.GreaterOrEqual(t, rec.ActualBuyPrice, opp.BuyPrice)
		assert.LessOrEqual(t, rec.ActualSellPrice, opp.SellPrice)
		assert.LessOrEqual(t, rec.ProfitUSD, ideal)
	}
}

func TestUnprofitableFillMarkedFailed(t *testing.T) {
	// A hair-thin spread wiped out by worst-case slippage on both legs.
	sim := NewSimulator(0.2, 1).WithSlippage(func() float64 { return maxSlippageFrac })
	opp := domain.Opportunity{
		Symbol:    "ETH/USDT",
		BuyVenue:  "kucoin",
		SellVenue: "coinbase",
		BuyPrice:  3000,
		SellPrice: 3003,
		SpreadPct: 0.1,
	}

	rec := sim.Execute(context.Background(), opp, 500, nil)
	assert.Less(t, rec.ProfitUSD, 0.0)
	assert.False(t, rec.Success)
	assert.Less(t, rec.ProfitPct, 0.0)
}

func TestRejectsUnusableInput(t *testing.T) {
	sim := NewSimulator(0.2, 1)

	rec := sim.Execute(context.Background(), testOpp(), 0, nil)
	assert.False(t, rec.Success)
	assert.Zero(t, rec.CostUSD)

	opp := testOpp()
	opp.BuyPrice = 0
	rec = sim.Execute(context.Background(), opp, 1000, nil)
	assert.False(t, rec.Success)
	assert.Zero(t, rec.AssetAmount)
}

func TestProfitPctAgainstCost(t *testing.T) {
	sim := NewSimulator(0.2, 7)
	rec := sim.Execute(context.Background(), testOpp(), 2500, nil)

	require.Greater(t, rec.CostUSD, 0.0)
	assert.InDelta(t, rec.ProfitUSD/rec.CostUSD*100, rec.ProfitPct, 1e-9)
}
