// Package postgres implements the trading history store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/rs/zerolog/log"

	"github.com/poolmind/poolmind/internal/persistence"
)

const defaultQueryTimeout = 10 * time.Second

// bootstrapDDL creates the history tables. Idempotent; the repo runs it on
// open so a fresh database works without a migration step.
const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS cycle_history (
	id BIGSERIAL PRIMARY KEY,
	cycle_id VARCHAR(64) NOT NULL,
	status VARCHAR(16) NOT NULL,
	opportunities_found INTEGER NOT NULL DEFAULT 0,
	execution_count INTEGER NOT NULL DEFAULT 0,
	profit_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cycle_history_cycle_id ON cycle_history (cycle_id);
CREATE INDEX IF NOT EXISTS idx_cycle_history_created_at ON cycle_history (created_at DESC);

CREATE TABLE IF NOT EXISTS trade_history (
	id BIGSERIAL PRIMARY KEY,
	cycle_id VARCHAR(64) NOT NULL,
	symbol VARCHAR(20) NOT NULL,
	buy_venue VARCHAR(32) NOT NULL,
	sell_venue VARCHAR(32) NOT NULL,
	size_usd DOUBLE PRECISION NOT NULL,
	profit_usd DOUBLE PRECISION NOT NULL,
	slippage_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_trade_history_cycle_id ON trade_history (cycle_id);

CREATE TABLE IF NOT EXISTS pool_states (
	id BIGSERIAL PRIMARY KEY,
	total_value_usd DOUBLE PRECISION NOT NULL,
	cash_reserve_usd DOUBLE PRECISION NOT NULL,
	participant_count INTEGER NOT NULL,
	liquidity_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// HistoryRepo is the PostgreSQL persistence.Store.
type HistoryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to the DSN, configures the pool, verifies connectivity, and
// bootstraps the schema.
func Open(ctx context.Context, dsn string) (*HistoryRepo, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history store: %w", err)
	}

	repo := NewHistoryRepo(db, defaultQueryTimeout)
	if err := repo.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("History store connected")
	return repo, nil
}

// NewHistoryRepo wraps an existing connection, for tests and embedding.
func NewHistoryRepo(db *sqlx.DB, timeout time.Duration) *HistoryRepo {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &HistoryRepo{db: db, timeout: timeout}
}

// Bootstrap applies the idempotent schema DDL.
func (r *HistoryRepo) Bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.db.ExecContext(ctx, bootstrapDDL); err != nil {
		return fmt.Errorf("bootstrap history schema: %w", err)
	}
	return nil
}

// SaveCycle appends one cycle row with its record as a JSONB payload.
func (r *HistoryRepo) SaveCycle(ctx context.Context, c persistence.Cycle) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := marshalPayload(c.Payload)
	if err != nil {
		return fmt.Errorf("marshal cycle payload: %w", err)
	}

	query := `
		INSERT INTO cycle_history
			(cycle_id, status, opportunities_found, execution_count, profit_usd, duration_seconds, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := r.db.ExecContext(ctx, query,
		c.CycleID, c.Status, c.OpportunitiesFound, c.ExecutionCount,
		c.ProfitUSD, c.DurationSeconds, payload); err != nil {
		return fmt.Errorf("insert cycle %s: %w", c.CycleID, err)
	}
	return nil
}

// SaveTrade appends one execution row.
func (r *HistoryRepo) SaveTrade(ctx context.Context, t persistence.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := marshalPayload(t.Payload)
	if err != nil {
		return fmt.Errorf("marshal trade payload: %w", err)
	}

	query := `
		INSERT INTO trade_history
			(cycle_id, symbol, buy_venue, sell_venue, size_usd, profit_usd, slippage_pct, success, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := r.db.ExecContext(ctx, query,
		t.CycleID, t.Symbol, t.BuyVenue, t.SellVenue,
		t.SizeUSD, t.ProfitUSD, t.SlippagePct, t.Success, payload); err != nil {
		return fmt.Errorf("insert trade %s/%s: %w", t.CycleID, t.Symbol, err)
	}
	return nil
}

// SavePoolState appends one pool snapshot row.
func (r *HistoryRepo) SavePoolState(ctx context.Context, p persistence.PoolState) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO pool_states
			(total_value_usd, cash_reserve_usd, participant_count, liquidity_ratio)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query,
		p.TotalValueUSD, p.CashReserveUSD, p.ParticipantCount, p.LiquidityRatio); err != nil {
		return fmt.Errorf("insert pool state: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycle rows, most recent first.
func (r *HistoryRepo) RecentCycles(ctx context.Context, limit int) ([]persistence.Cycle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, cycle_id, status, opportunities_found, execution_count,
		       profit_usd, duration_seconds, payload, created_at
		FROM cycle_history
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []persistence.Cycle
	for rows.Next() {
		var c persistence.Cycle
		var payload []byte
		if err := rows.Scan(&c.ID, &c.CycleID, &c.Status, &c.OpportunitiesFound,
			&c.ExecutionCount, &c.ProfitUSD, &c.DurationSeconds, &payload, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		c.Payload = rawPayload(payload)
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle rows: %w", err)
	}
	return cycles, nil
}

// TradesByCycle returns every trade archived for one cycle, oldest first.
func (r *HistoryRepo) TradesByCycle(ctx context.Context, cycleID string) ([]persistence.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, cycle_id, symbol, buy_venue, sell_venue, size_usd,
		       profit_usd, slippage_pct, success, payload, created_at
		FROM trade_history
		WHERE cycle_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryxContext(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query trades for cycle %s: %w", cycleID, err)
	}
	defer rows.Close()

	var trades []persistence.Trade
	for rows.Next() {
		var t persistence.Trade
		var payload []byte
		if err := rows.Scan(&t.ID, &t.CycleID, &t.Symbol, &t.BuyVenue, &t.SellVenue,
			&t.SizeUSD, &t.ProfitUSD, &t.SlippagePct, &t.Success, &payload, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Payload = rawPayload(payload)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// LatestPoolState returns the newest pool snapshot, or nil when none exists.
func (r *HistoryRepo) LatestPoolState(ctx context.Context) (*persistence.PoolState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, total_value_usd, cash_reserve_usd, participant_count, liquidity_ratio, created_at
		FROM pool_states
		ORDER BY created_at DESC
		LIMIT 1`

	var p persistence.PoolState
	err := r.db.QueryRowxContext(ctx, query).Scan(
		&p.ID, &p.TotalValueUSD, &p.CashReserveUSD, &p.ParticipantCount, &p.LiquidityRatio, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest pool state: %w", err)
	}
	return &p, nil
}

// Ping verifies connectivity for health checks.
func (r *HistoryRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

// Close releases the connection pool.
func (r *HistoryRepo) Close() error {
	return r.db.Close()
}

func marshalPayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

func rawPayload(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
