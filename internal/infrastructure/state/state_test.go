package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolmind/poolmind/internal/ledger"
)

func testMetrics() ledger.PoolMetrics {
	return ledger.PoolMetrics{
		TotalPoolValue:   100500,
		CashReserve:      90500,
		ParticipantCount: 3,
		ROI:              0.5,
	}
}

func newMockedRedis(t *testing.T) (*Redis, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { client.Close() })
	store := NewRedis(client)
	store.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return store, mock
}

func TestRedisSetPoolStateWritesHash(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectHSet(poolStateKey,
		"total_value", 100500.0,
		"cash_reserve", 90500.0,
		"participant_count", 3,
		"roi", 0.5,
		"updated_at", "2025-06-01T12:00:00Z",
	).SetVal(5)

	require.NoError(t, store.SetPoolState(context.Background(), testMetrics()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSetPoolStateWrapsError(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectHSet(poolStateKey,
		"total_value", 100500.0,
		"cash_reserve", 90500.0,
		"participant_count", 3,
		"roi", 0.5,
		"updated_at", "2025-06-01T12:00:00Z",
	).SetErr(errors.New("connection refused"))

	err := store.SetPoolState(context.Background(), testMetrics())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write pool state")
}

func TestRedisEngineFlagRoundTrip(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectSet(engineRunningKey, "true", 0).SetVal("OK")
	require.NoError(t, store.SetEngineRunning(context.Background(), true))

	mock.ExpectGet(engineRunningKey).SetVal("true")
	running, err := store.EngineRunning(context.Background())
	require.NoError(t, err)
	assert.True(t, running)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisEngineFlagMissingKeyMeansStopped(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectGet(engineRunningKey).RedisNil()
	running, err := store.EngineRunning(context.Background())
	require.NoError(t, err)
	assert.False(t, running)
}

func TestRedisPoolStateEmptyHashMeansUnpublished(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectHGetAll(poolStateKey).SetVal(map[string]string{})
	snap, err := store.PoolState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRedisPoolStateParsesFields(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectHGetAll(poolStateKey).SetVal(map[string]string{
		"total_value":       "100500",
		"cash_reserve":      "90500",
		"participant_count": "3",
		"roi":               "0.5",
		"updated_at":        "2025-06-01T12:00:00Z",
	})

	snap, err := store.PoolState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 100500.0, snap.TotalValueUSD)
	assert.Equal(t, 90500.0, snap.CashReserveUSD)
	assert.Equal(t, 3, snap.ParticipantCount)
	assert.Equal(t, 0.5, snap.ROI)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), snap.UpdatedAt)
}

func TestRedisPoolStateRejectsGarbage(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectHGetAll(poolStateKey).SetVal(map[string]string{
		"total_value": "not-a-number",
	})

	_, err := store.PoolState(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_value")
}

func TestRedisPing(t *testing.T) {
	store, mock := newMockedRedis(t)

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().SetErr(errors.New("down"))
	assert.Error(t, store.Ping(context.Background()))
}

func TestMemoryRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	snap, err := store.PoolState(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, store.SetPoolState(ctx, testMetrics()))
	snap, err = store.PoolState(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 100500.0, snap.TotalValueUSD)
	assert.Equal(t, 3, snap.ParticipantCount)
	assert.False(t, snap.UpdatedAt.IsZero())

	running, err := store.EngineRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, store.SetEngineRunning(ctx, true))
	running, err = store.EngineRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, store.Close())
}

func TestNewAutoSelectsBackend(t *testing.T) {
	mem := NewAuto("", 0)
	_, ok := mem.(*Memory)
	assert.True(t, ok, "empty address should select the memory store")

	rds := NewAuto("localhost:6379", 1)
	_, ok = rds.(*Redis)
	assert.True(t, ok, "an address should select the redis store")
	rds.Close()
}
