// Package persistence defines the durable trading history: every finished
// cycle, every executed trade, and a pool snapshot per cycle are appended as
// rows with a full JSON payload alongside the queryable columns. Stores are
// append-only; nothing here mutates or deletes.
package persistence

import (
	"context"
	"time"
)

// Cycle is one archived pass of the trading loop.
type Cycle struct {
	ID                 int64     `json:"id" db:"id"`
	CycleID            string    `json:"cycle_id" db:"cycle_id"`
	Status             string    `json:"status" db:"status"`
	OpportunitiesFound int       `json:"opportunities_found" db:"opportunities_found"`
	ExecutionCount     int       `json:"execution_count" db:"execution_count"`
	ProfitUSD          float64   `json:"profit_usd" db:"profit_usd"`
	DurationSeconds    float64   `json:"duration_seconds" db:"duration_seconds"`
	Payload            any       `json:"payload" db:"payload"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Trade is one archived execution, paired buy/sell across two venues.
type Trade struct {
	ID          int64     `json:"id" db:"id"`
	CycleID     string    `json:"cycle_id" db:"cycle_id"`
	Symbol      string    `json:"symbol" db:"symbol"`
	BuyVenue    string    `json:"buy_venue" db:"buy_venue"`
	SellVenue   string    `json:"sell_venue" db:"sell_venue"`
	SizeUSD     float64   `json:"size_usd" db:"size_usd"`
	ProfitUSD   float64   `json:"profit_usd" db:"profit_usd"`
	SlippagePct float64   `json:"slippage_pct" db:"slippage_pct"`
	Success     bool      `json:"success" db:"success"`
	Payload     any       `json:"payload" db:"payload"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PoolState is the pool snapshot taken at the end of a cycle.
type PoolState struct {
	ID               int64     `json:"id" db:"id"`
	TotalValueUSD    float64   `json:"total_value_usd" db:"total_value_usd"`
	CashReserveUSD   float64   `json:"cash_reserve_usd" db:"cash_reserve_usd"`
	ParticipantCount int       `json:"participant_count" db:"participant_count"`
	LiquidityRatio   float64   `json:"liquidity_ratio" db:"liquidity_ratio"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Store archives cycles, trades, and pool states and serves them back for
// operator tooling. Implementations must tolerate concurrent use.
type Store interface {
	SaveCycle(ctx context.Context, c Cycle) error
	SaveTrade(ctx context.Context, t Trade) error
	SavePoolState(ctx context.Context, p PoolState) error

	RecentCycles(ctx context.Context, limit int) ([]Cycle, error)
	TradesByCycle(ctx context.Context, cycleID string) ([]Trade, error)
	LatestPoolState(ctx context.Context) (*PoolState, error)

	Ping(ctx context.Context) error
	Close() error
}

// Nop is the Store used when no history DSN is configured. Writes vanish,
// reads come back empty, and health checks pass.
type Nop struct{}

func (Nop) SaveCycle(context.Context, Cycle) error         { return nil }
func (Nop) SaveTrade(context.Context, Trade) error         { return nil }
func (Nop) SavePoolState(context.Context, PoolState) error { return nil }

func (Nop) RecentCycles(context.Context, int) ([]Cycle, error)     { return nil, nil }
func (Nop) TradesByCycle(context.Context, string) ([]Trade, error) { return nil, nil }
func (Nop) LatestPoolState(context.Context) (*PoolState, error)    { return nil, nil }

func (Nop) Ping(context.Context) error { return nil }
func (Nop) Close() error               { return nil }
