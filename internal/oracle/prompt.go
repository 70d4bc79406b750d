package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poolmind/poolmind/internal/cases"
	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/ledger"
)

const strategySystemPrompt = `You are a crypto arbitrage trading strategy expert. Analyze the current
pool state, market data, and arbitrage opportunities and recommend the best
trading strategy.

Consider:
1. Pool liquidity and cash reserves
2. Risk exposure and position sizing
3. Opportunity profitability and reliability
4. Historical performance in similar conditions

Respond with the recommend_strategy function. Opportunity indices refer to
the numbered list in the user message; position sizes are USD amounts.`

const riskSystemPrompt = `You are a risk assessment expert for crypto arbitrage trading. Analyze the
proposed trading strategy and assess its risk level.

Consider:
1. Liquidity risk - can the trades execute without significant slippage?
2. Exchange risk - how reliable are the venues involved?
3. Market risk - how volatile are the traded assets?
4. Pool impact - how does the strategy affect overall pool health?

Respond with the risk_assessment function. The score runs from 1 (lowest
risk) to 10 (highest risk).`

func strategyUserPrompt(pool ledger.PoolMetrics, snap domain.Snapshot, opps []domain.Opportunity, precedent []cases.Neighbor) string {
	var b strings.Builder

	b.WriteString("Current Pool State:\n")
	writeJSON(&b, pool)

	b.WriteString("\nMarket Data Summary:\n")
	writeJSON(&b, summarizeSnapshot(snap))

	b.WriteString("\nArbitrage Opportunities (by index):\n")
	writeJSON(&b, opps)

	if len(precedent) > 0 {
		b.WriteString("\nSimilar Past Trades:\n")
		writeJSON(&b, precedent)
	}

	b.WriteString("\nRecommend which opportunities to pursue, position sizing for each, and risk management considerations.")
	return b.String()
}

func riskUserPrompt(pool ledger.PoolMetrics, proposal domain.Proposal, selected []domain.Opportunity) string {
	var b strings.Builder

	b.WriteString("Current Pool State:\n")
	writeJSON(&b, pool)

	b.WriteString("\nProposed Strategy:\n")
	writeJSON(&b, proposal)

	b.WriteString("\nSelected Opportunities:\n")
	writeJSON(&b, selected)

	b.WriteString("\nAssess the risk of this trading strategy.")
	return b.String()
}

// venueSummary condenses one venue's quote for prompt context.
type venueSummary struct {
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	SpreadPct float64 `json:"spread_pct"`
}

func summarizeSnapshot(snap domain.Snapshot) map[string]map[string]venueSummary {
	summary := make(map[string]map[string]venueSummary, len(snap.Quotes))
	for symbol, venues := range snap.Quotes {
		perVenue := make(map[string]venueSummary, len(venues))
		for venue, q := range venues {
			s := venueSummary{Bid: q.Bid, Ask: q.Ask}
			if q.Bid > 0 {
				s.SpreadPct = (q.Ask - q.Bid) / q.Bid * 100
			}
			perVenue[venue] = s
		}
		summary[symbol] = perVenue
	}
	return summary
}

func writeJSON(b *strings.Builder, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "%v\n", v)
		return
	}
	b.Write(data)
	b.WriteString("\n")
}

var strategyTool = chatTool{
	Type: "function",
	Function: chatFunction{
		Name:        "recommend_strategy",
		Description: "Recommend a trading strategy based on the provided data",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"selected_opportunities": {
					"type": "array",
					"description": "List of opportunity indices to pursue",
					"items": {"type": "integer"}
				},
				"position_sizes": {
					"type": "array",
					"description": "Recommended position size for each opportunity in USD",
					"items": {"type": "number"}
				},
				"risk_assessment": {
					"type": "string",
					"description": "Risk assessment of the strategy"
				},
				"reasoning": {
					"type": "string",
					"description": "Reasoning behind the strategy"
				}
			},
			"required": ["selected_opportunities", "position_sizes", "risk_assessment", "reasoning"]
		}`),
	},
}

var riskTool = chatTool{
	Type: "function",
	Function: chatFunction{
		Name:        "risk_assessment",
		Description: "Provide a risk assessment for the trading strategy",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"risk_score": {
					"type": "integer",
					"description": "Risk score from 1 (lowest risk) to 10 (highest risk)"
				},
				"liquidity_risk": {"type": "string", "description": "Assessment of liquidity risk"},
				"exchange_risk": {"type": "string", "description": "Assessment of exchange risk"},
				"market_risk": {"type": "string", "description": "Assessment of market risk"},
				"pool_impact": {"type": "string", "description": "Assessment of impact on the pool"},
				"recommendation": {
					"type": "string",
					"description": "Recommendation based on risk assessment"
				}
			},
			"required": ["risk_score", "recommendation"]
		}`),
	},
}
