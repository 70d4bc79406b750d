package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolmind/poolmind/internal/persistence"
)

func newMockRepo(t *testing.T) (*HistoryRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	return NewHistoryRepo(db, time.Second), mock
}

func TestSaveCycleInsertsRowWithPayload(t *testing.T) {
	repo, mock := newMockRepo(t)

	payload := map[string]any{"cycle_id": "cycle_1", "status": "completed"}
	payloadJSON, err := json.Marshal(payload)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO cycle_history`).
		WithArgs("cycle_1", "completed", 3, 2, 12.5, 0.42, payloadJSON).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.SaveCycle(context.Background(), persistence.Cycle{
		CycleID:            "cycle_1",
		Status:             "completed",
		OpportunitiesFound: 3,
		ExecutionCount:     2,
		ProfitUSD:          12.5,
		DurationSeconds:    0.42,
		Payload:            payload,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCycleWrapsDatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO cycle_history`).
		WillReturnError(errors.New("connection reset"))

	err := repo.SaveCycle(context.Background(), persistence.Cycle{CycleID: "cycle_9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert cycle cycle_9")
}

func TestSaveTradeInsertsRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO trade_history`).
		WithArgs("cycle_1", "BTC/USDT", "binance", "coinbase", 5000.0, 79.2, 0.05, true, []byte(nil)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveTrade(context.Background(), persistence.Trade{
		CycleID:     "cycle_1",
		Symbol:      "BTC/USDT",
		BuyVenue:    "binance",
		SellVenue:   "coinbase",
		SizeUSD:     5000,
		ProfitUSD:   79.2,
		SlippagePct: 0.05,
		Success:     true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePoolStateInsertsRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO pool_states`).
		WithArgs(100500.0, 90500.0, 4, 0.9005).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SavePoolState(context.Background(), persistence.PoolState{
		TotalValueUSD:    100500,
		CashReserveUSD:   90500,
		ParticipantCount: 4,
		LiquidityRatio:   0.9005,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentCyclesScansRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "cycle_id", "status", "opportunities_found", "execution_count",
		"profit_usd", "duration_seconds", "payload", "created_at",
	}).
		AddRow(2, "cycle_2", "completed", 1, 1, 4.2, 0.2, []byte(`{"cycle_id":"cycle_2"}`), now).
		AddRow(1, "cycle_1", "error", 0, 0, 0.0, 0.1, nil, now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT id, cycle_id, status, opportunities_found`).
		WithArgs(5).
		WillReturnRows(rows)

	cycles, err := repo.RecentCycles(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	assert.Equal(t, "cycle_2", cycles[0].CycleID)
	assert.Equal(t, "completed", cycles[0].Status)
	assert.Equal(t, json.RawMessage(`{"cycle_id":"cycle_2"}`), cycles[0].Payload)
	assert.Equal(t, "error", cycles[1].Status)
	assert.Nil(t, cycles[1].Payload)
}

func TestTradesByCycleScansRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "cycle_id", "symbol", "buy_venue", "sell_venue", "size_usd",
		"profit_usd", "slippage_pct", "success", "payload", "created_at",
	}).
		AddRow(1, "cycle_1", "BTC/USDT", "binance", "kraken", 2500.0, 38.1, 0.03, true, nil, now).
		AddRow(2, "cycle_1", "ETH/USDT", "kucoin", "coinbase", 2500.0, -1.7, 0.11, false, nil, now)

	mock.ExpectQuery(`SELECT id, cycle_id, symbol, buy_venue, sell_venue`).
		WithArgs("cycle_1").
		WillReturnRows(rows)

	trades, err := repo.TradesByCycle(context.Background(), "cycle_1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "BTC/USDT", trades[0].Symbol)
	assert.True(t, trades[0].Success)
	assert.False(t, trades[1].Success)
}

func TestLatestPoolStateNoRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, total_value_usd`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "total_value_usd", "cash_reserve_usd", "participant_count", "liquidity_ratio", "created_at",
		}))

	state, err := repo.LatestPoolState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLatestPoolStateScansRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, total_value_usd`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "total_value_usd", "cash_reserve_usd", "participant_count", "liquidity_ratio", "created_at",
		}).AddRow(7, 110000.0, 99000.0, 3, 0.9, now))

	state, err := repo.LatestPoolState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 110000.0, state.TotalValueUSD)
	assert.Equal(t, 3, state.ParticipantCount)
}

func TestBootstrapRunsDDL(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cycle_history`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Bootstrap(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingDelegates(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectPing()
	assert.NoError(t, repo.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, repo.Ping(context.Background()))
}

func TestNopStoreIsSilent(t *testing.T) {
	var store persistence.Store = persistence.Nop{}

	require.NoError(t, store.SaveCycle(context.Background(), persistence.Cycle{}))
	require.NoError(t, store.SaveTrade(context.Background(), persistence.Trade{}))
	require.NoError(t, store.SavePoolState(context.Background(), persistence.PoolState{}))

	cycles, err := store.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, cycles)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
}
