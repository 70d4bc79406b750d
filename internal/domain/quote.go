package domain

import "time"

// Quote is the top-of-book for one symbol on one venue.
type Quote struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the quote is usable for detection.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Bid <= q.Ask && q.Volume >= 0
}

// Snapshot is an immutable symbol -> venue -> quote view. All entries share
// one logical timestamp; a venue that failed to answer is simply absent.
type Snapshot struct {
	Quotes    map[string]map[string]Quote `json:"quotes"`
	Timestamp time.Time                   `json:"timestamp"`
}

// At returns the quote for (symbol, venue) if present.
func (s Snapshot) At(symbol, venue string) (Quote, bool) {
	venues, ok := s.Quotes[symbol]
	if !ok {
		return Quote{}, false
	}
	q, ok := venues[venue]
	return q, ok
}

// Empty reports whether the snapshot carries no quotes at all.
func (s Snapshot) Empty() bool {
	for _, venues := range s.Quotes {
		if len(venues) > 0 {
			return false
		}
	}
	return true
}

// QuoteCount returns the number of (symbol, venue) entries.
func (s Snapshot) QuoteCount() int {
	n := 0
	for _, venues := range s.Quotes {
		n += len(venues)
	}
	return n
}
