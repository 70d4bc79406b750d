package domain

import (
	"sort"
	"time"
)

// DefaultFeePct is the flat round-trip fee estimate in percentage points
// (0.1% per leg on each venue).
const DefaultFeePct = 0.2

// FeeModel converts a gross spread percentage into a net profit percentage.
type FeeModel func(spreadPct float64) float64

// FlatFee returns a FeeModel that subtracts feePct percentage points.
func FlatFee(feePct float64) FeeModel {
	return func(spreadPct float64) float64 { return spreadPct - feePct }
}

// Opportunity is a cross-venue dislocation: buy at BuyVenue's ask, sell at
// SellVenue's bid.
type Opportunity struct {
	Symbol       string    `json:"symbol"`
	BuyVenue     string    `json:"buy_venue"`
	SellVenue    string    `json:"sell_venue"`
	BuyPrice     float64   `json:"buy_price"`
	SellPrice    float64   `json:"sell_price"`
	SpreadPct    float64   `json:"spread_pct"`
	ProfitPct    float64   `json:"profit_pct"`
	MaxVolumeUSD float64   `json:"max_volume_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// Detector scans snapshots for arbitrage opportunities.
type Detector struct {
	minSpreadPct float64
	fee          FeeModel
}

// NewDetector builds a detector with the given spread floor in percent.
// A nil fee model falls back to the flat default.
func NewDetector(minSpreadPct float64, fee FeeModel) *Detector {
	if fee == nil {
		fee = FlatFee(DefaultFeePct)
	}
	return &Detector{minSpreadPct: minSpreadPct, fee: fee}
}

// MinSpreadPct returns the configured spread floor.
func (d *Detector) MinSpreadPct() float64 { return d.minSpreadPct }

type venueLevel struct {
	venue  string
	price  float64
	volume float64
}

// Scan enumerates buy/sell venue pairs whose crossed spread exceeds the
// floor. Output is sorted by net profit descending; ties break on symbol
// then buy venue then sell venue so runs are reproducible.
func (d *Detector) Scan(snap Snapshot) []Opportunity {
	var opps []Opportunity

	symbols := make([]string, 0, len(snap.Quotes))
	for symbol := range snap.Quotes {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		bids := make([]venueLevel, 0, len(snap.Quotes[symbol]))
		asks := make([]venueLevel, 0, len(snap.Quotes[symbol]))
		for venue, q := range snap.Quotes[symbol] {
			if q.Bid > 0 {
				bids = append(bids, venueLevel{venue: venue, price: q.Bid, volume: q.Volume})
			}
			if q.Ask > 0 {
				asks = append(asks, venueLevel{venue: venue, price: q.Ask, volume: q.Volume})
			}
		}

		sort.Slice(bids, func(i, j int) bool {
			if bids[i].price != bids[j].price {
				return bids[i].price > bids[j].price
			}
			return bids[i].venue < bids[j].venue
		})
		sort.Slice(asks, func(i, j int) bool {
			if asks[i].price != asks[j].price {
				return asks[i].price < asks[j].price
			}
			return asks[i].venue < asks[j].venue
		})

		for _, sell := range bids {
			for _, buy := range asks {
				if sell.venue == buy.venue {
					continue
				}
				spreadPct := 100 * (sell.price - buy.price) / buy.price
				if spreadPct <= d.minSpreadPct {
					continue
				}
				opps = append(opps, Opportunity{
					Symbol:       symbol,
					BuyVenue:     buy.venue,
					SellVenue:    sell.venue,
					BuyPrice:     buy.price,
					SellPrice:    sell.price,
					SpreadPct:    spreadPct,
					ProfitPct:    d.fee(spreadPct),
					MaxVolumeUSD: minFloat(sell.volume, buy.volume) * buy.price,
					Timestamp:    snap.Timestamp,
				})
			}
		}
	}

	sort.Slice(opps, func(i, j int) bool {
		if opps[i].ProfitPct != opps[j].ProfitPct {
			return opps[i].ProfitPct > opps[j].ProfitPct
		}
		if opps[i].Symbol != opps[j].Symbol {
			return opps[i].Symbol < opps[j].Symbol
		}
		if opps[i].BuyVenue != opps[j].BuyVenue {
			return opps[i].BuyVenue < opps[j].BuyVenue
		}
		return opps[i].SellVenue < opps[j].SellVenue
	})

	return opps
}

// Filter drops opportunities below either floor, preserving order.
func Filter(opps []Opportunity, minProfitPct, minVolumeUSD float64) []Opportunity {
	filtered := make([]Opportunity, 0, len(opps))
	for _, opp := range opps {
		if opp.ProfitPct >= minProfitPct && opp.MaxVolumeUSD >= minVolumeUSD {
			filtered = append(filtered, opp)
		}
	}
	return filtered
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
