package domain

import (
	"fmt"
	"time"
)

// Proposal selects opportunities by index and assigns USD position sizes.
// Indices refer positionally to the opportunity list the proposal was
// generated against.
type Proposal struct {
	SelectedOpportunities []int     `json:"selected_opportunities"`
	PositionSizes         []float64 `json:"position_sizes"`
	RiskAssessment        string    `json:"risk_assessment"`
	Reasoning             string    `json:"reasoning"`
	Fallback              bool      `json:"fallback,omitempty"`
}

// Validate rejects proposals whose indices or sizes cannot be applied to a
// list of opportunityCount opportunities.
func (p Proposal) Validate(opportunityCount int) error {
	if len(p.SelectedOpportunities) != len(p.PositionSizes) {
		return fmt.Errorf("proposal: %d indices but %d sizes", len(p.SelectedOpportunities), len(p.PositionSizes))
	}
	seen := make(map[int]bool, len(p.SelectedOpportunities))
	for i, idx := range p.SelectedOpportunities {
		if idx < 0 || idx >= opportunityCount {
			return fmt.Errorf("proposal: index %d out of range [0,%d)", idx, opportunityCount)
		}
		if seen[idx] {
			return fmt.Errorf("proposal: duplicate index %d", idx)
		}
		seen[idx] = true
		if p.PositionSizes[i] < 0 {
			return fmt.Errorf("proposal: negative size %.2f for index %d", p.PositionSizes[i], idx)
		}
	}
	return nil
}

// Assessment is the risk gate's verdict on a proposal.
type Assessment struct {
	Score          int    `json:"risk_score"`
	Recommendation string `json:"recommendation"`
	LiquidityRisk  string `json:"liquidity_risk,omitempty"`
	ExchangeRisk   string `json:"exchange_risk,omitempty"`
	MarketRisk     string `json:"market_risk,omitempty"`
	PoolImpact     string `json:"pool_impact,omitempty"`
}

// ExecutionRecord captures one simulated paired buy/sell.
type ExecutionRecord struct {
	Opportunity     Opportunity `json:"opportunity"`
	SizeUSD         float64     `json:"position_size_usd"`
	AssetAmount     float64     `json:"asset_amount"`
	ActualBuyPrice  float64     `json:"actual_buy_price"`
	ActualSellPrice float64     `json:"actual_sell_price"`
	CostUSD         float64     `json:"cost_usd"`
	RevenueUSD      float64     `json:"revenue_usd"`
	ProfitUSD       float64     `json:"profit_usd"`
	ProfitPct       float64     `json:"profit_pct"`
	BuySlippagePct  float64     `json:"buy_slippage_pct"`
	SellSlippagePct float64     `json:"sell_slippage_pct"`
	ExecutedAt      time.Time   `json:"executed_at"`
	Success         bool        `json:"success"`
}
