package cases

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryNearestOrdersByDistance(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	near := Context{PoolValue: 50000, ParticipantCount: 10, SpreadPct: 2.0, PositionSizeUSD: 1000}
	mid := Context{PoolValue: 50000, ParticipantCount: 10, SpreadPct: 8.0, PositionSizeUSD: 4000}
	far := Context{PoolValue: 100, ParticipantCount: 900, SpreadPct: 0.1, PositionSizeUSD: 5}

	require.NoError(t, m.Record(ctx, far, Outcome{ProfitUSD: -3}))
	require.NoError(t, m.Record(ctx, near, Outcome{ProfitUSD: 12}))
	require.NoError(t, m.Record(ctx, mid, Outcome{ProfitUSD: 4}))

	got, err := m.QueryNearest(ctx, near, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Identical context comes back first with ~zero distance.
	assert.InDelta(t, 0, got[0].Distance, 1e-12)
	assert.Equal(t, 12.0, got[0].Outcome.ProfitUSD)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Distance, got[i-1].Distance)
	}
	assert.Equal(t, -3.0, got[2].Outcome.ProfitUSD)
}

func TestQueryNearestCapsAtK(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Record(ctx, Context{PoolValue: float64(1000 * (i + 1))}, Outcome{}))
	}

	got, err := m.QueryNearest(ctx, Context{PoolValue: 5000}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = m.QueryNearest(ctx, Context{PoolValue: 5000}, 100)
	require.NoError(t, err)
	assert.Len(t, got, 10)

	got, err = m.QueryNearest(ctx, Context{PoolValue: 5000}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryNearestEmptyStore(t *testing.T) {
	m := NewMemory()
	got, err := m.QueryNearest(context.Background(), Context{PoolValue: 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestZeroVectorIsMaximallyDistant(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, Context{}, Outcome{}))
	require.NoError(t, m.Record(ctx, Context{PoolValue: 100, SpreadPct: 1}, Outcome{ProfitUSD: 1}))

	got, err := m.QueryNearest(ctx, Context{PoolValue: 100, SpreadPct: 1}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Outcome.ProfitUSD)
	assert.Equal(t, 1.0, got[1].Distance)
}

func TestRecordAssignsUniqueIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	c := Context{PoolValue: 10}

	require.NoError(t, m.Record(ctx, c, Outcome{}))
	require.NoError(t, m.Record(ctx, c, Outcome{}))

	got, err := m.QueryNearest(ctx, c, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.False(t, got[0].StoredAt.IsZero())
}

func TestConcurrentRecordAndQuery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = m.Record(ctx, Context{PoolValue: float64(n*100 + j)}, Outcome{})
				_, _ = m.QueryNearest(ctx, Context{PoolValue: 500}, 5)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 160, m.Len())
}
