// Package executor fills two-leg arbitrage orders. The current
// implementation simulates fills with random slippage; the interface takes
// real venue clients so a live implementation can slot in without touching
// the orchestrator.
package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/market"
)

// TradeExecutor executes one sized opportunity. Failures are reported inside
// the record with Success=false, never as an error, so one bad leg cannot
// abort a cycle.
type TradeExecutor interface {
	Execute(ctx context.Context, opp domain.Opportunity, sizeUSD float64, venues map[string]market.VenueClient) domain.ExecutionRecord
}

// maxSlippageFrac bounds the uniform per-leg slippage draw.
const maxSlippageFrac = 0.002

// Simulator models fills as the quoted prices worsened by an independent
// uniform slippage draw per leg, with a flat fee haircut on gross profit.
type Simulator struct {
	feePct float64
	slip   func() float64
}

// NewSimulator builds a simulator with the given fee in percent. A negative
// fee falls back to the default.
func NewSimulator(feePct float64, seed int64) *Simulator {
	if feePct < 0 {
		feePct = domain.DefaultFeePct
	}

	rng := rand.New(rand.NewSource(seed))
	var mu sync.Mutex
	return &Simulator{
		feePct: feePct,
		slip: func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return rng.Float64() * maxSlippageFrac
		},
	}
}

// WithSlippage replaces the per-leg slippage source.
func (s *Simulator) WithSlippage(fn func() float64) *Simulator {
	s.slip = fn
	return s
}

// Execute simulates buying on the cheap venue and selling on the rich one.
func (s *Simulator) Execute(_ context.Context, opp domain.Opportunity, sizeUSD float64, _ map[string]market.VenueClient) domain.ExecutionRecord {
	record := domain.ExecutionRecord{
		Opportunity: opp,
		SizeUSD:     sizeUSD,
		ExecutedAt:  time.Now(),
	}
	if sizeUSD <= 0 || opp.BuyPrice <= 0 {
		return record
	}

	assetAmount := sizeUSD / opp.BuyPrice
	buySlip := s.slip()
	sellSlip := s.slip()

	actualBuy := opp.BuyPrice * (1 + buySlip)
	actualSell := opp.SellPrice * (1 - sellSlip)

	cost := assetAmount * actualBuy
	revenue := assetAmount * actualSell
	gross := revenue - cost
	profit := gross * (1 - s.feePct/100)

	record.AssetAmount = assetAmount
	record.ActualBuyPrice = actualBuy
	record.ActualSellPrice = actualSell
	record.CostUSD = cost
	record.RevenueUSD = revenue
	record.ProfitUSD = profit
	record.BuySlippagePct = buySlip * 100
	record.SellSlippagePct = sellSlip * 100
	record.Success = profit > 0
	if cost > 0 {
		record.ProfitPct = profit / cost * 100
	}

	log.Info().
		Str("symbol", opp.Symbol).
		Str("buy_venue", opp.BuyVenue).
		Str("sell_venue", opp.SellVenue).
		Float64("size_usd", sizeUSD).
		Float64("profit_usd", profit).
		Float64("profit_pct", record.ProfitPct).
		Bool("success", record.Success).
		Msg("arbitrage executed")
	return record
}
