// Package market collects bid/ask quotes from exchange venues and merges
// them into point-in-time snapshots for opportunity scanning.
package market

import (
	"context"

	"github.com/poolmind/poolmind/internal/domain"
)

// VenueClient fetches current top-of-book quotes from one exchange. A venue
// may omit symbols it does not list; implementations return only the symbols
// they can quote.
type VenueClient interface {
	Name() string
	FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
}

// DefaultVenueNames are the exchanges the simulated feed covers.
var DefaultVenueNames = []string{"binance", "coinbase", "kraken", "kucoin", "huobi"}
