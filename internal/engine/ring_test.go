package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsLastMax(t *testing.T) {
	r := newHistoryRing(3)

	for i := 1; i <= 5; i++ {
		r.append(CycleRecord{CycleID: fmt.Sprintf("c%d", i)})
	}

	assert.Equal(t, 3, r.size())
	got := r.last(10)
	require.Len(t, got, 3)
	assert.Equal(t, "c3", got[0].CycleID)
	assert.Equal(t, "c5", got[2].CycleID)
}

func TestRingLastReturnsNewestSuffix(t *testing.T) {
	r := newHistoryRing(100)
	for i := 1; i <= 7; i++ {
		r.append(CycleRecord{CycleID: fmt.Sprintf("c%d", i)})
	}

	got := r.last(2)
	require.Len(t, got, 2)
	assert.Equal(t, "c6", got[0].CycleID)
	assert.Equal(t, "c7", got[1].CycleID)

	assert.Nil(t, r.last(0))
	assert.Len(t, r.last(7), 7)
}

func TestRingEmpty(t *testing.T) {
	r := newHistoryRing(10)
	assert.Equal(t, 0, r.size())
	assert.Empty(t, r.last(5))
}
