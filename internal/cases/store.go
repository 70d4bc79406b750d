// Package cases is the trade-outcome memory: append-only records of the
// conditions a trade ran under and what came of it, queryable by similarity
// so the strategy oracle can weigh precedent. The store is advisory; callers
// must treat every failure as an empty result.
package cases

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context captures the conditions a trade was made under.
type Context struct {
	PoolValue        float64 `json:"pool_value"`
	ParticipantCount int     `json:"participant_count"`
	SpreadPct        float64 `json:"spread_pct"`
	PositionSizeUSD  float64 `json:"position_size_usd"`
}

// Outcome captures how the trade went.
type Outcome struct {
	ProfitUSD        float64 `json:"profit_usd"`
	ExecutionSeconds float64 `json:"execution_seconds"`
	SlippagePct      float64 `json:"slippage_pct"`
}

// Case is one stored context/outcome pair.
type Case struct {
	ID       string    `json:"id"`
	Context  Context   `json:"context"`
	Outcome  Outcome   `json:"outcome"`
	StoredAt time.Time `json:"stored_at"`
}

// Neighbor is a case plus its distance from the query context, smaller being
// closer.
type Neighbor struct {
	Case
	Distance float64 `json:"distance"`
}

// Store is the nearest-neighbor memory over past trades.
type Store interface {
	Record(ctx context.Context, c Context, o Outcome) error
	QueryNearest(ctx context.Context, c Context, k int) ([]Neighbor, error)
}

func (c Context) vector() [4]float64 {
	return [4]float64{c.PoolValue, float64(c.ParticipantCount), c.SpreadPct, c.PositionSizeUSD}
}

// cosineDistance is 1 - cos(a, b). Zero vectors are maximally distant.
func cosineDistance(a, b [4]float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Memory is an in-process cosine-scan Store. It never fails; the error
// returns exist so an external nearest-neighbor engine can sit behind the
// same interface.
type Memory struct {
	mu    sync.RWMutex
	cases []Case
}

func NewMemory() *Memory {
	return &Memory{}
}

// Record appends a case. Stored cases are never mutated.
func (m *Memory) Record(_ context.Context, c Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cases = append(m.cases, Case{
		ID:       "case_" + uuid.New().String(),
		Context:  c,
		Outcome:  o,
		StoredAt: time.Now(),
	})
	return nil
}

// QueryNearest returns up to k cases ordered by ascending cosine distance
// from the query context.
func (m *Memory) QueryNearest(_ context.Context, c Context, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	neighbors := make([]Neighbor, 0, len(m.cases))
	qv := c.vector()
	for _, stored := range m.cases {
		neighbors = append(neighbors, Neighbor{
			Case:     stored,
			Distance: cosineDistance(qv, stored.Context.vector()),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Len reports the number of stored cases.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cases)
}
