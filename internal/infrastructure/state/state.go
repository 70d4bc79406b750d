// Package state publishes the hot pool snapshot and the engine's loop
// flag to a shared KV store, so dashboards and sibling processes can
// read them without touching the ledger. Redis when an address is
// configured, process-local memory otherwise.
package state

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/poolmind/poolmind/internal/ledger"
)

// Keys in the hot store.
const (
	poolStateKey     = "pool:state"
	engineRunningKey = "engine:running"
)

// Snapshot is the pool state as read back from the store.
type Snapshot struct {
	TotalValueUSD    float64   `json:"total_value"`
	CashReserveUSD   float64   `json:"cash_reserve"`
	ParticipantCount int       `json:"participant_count"`
	ROI              float64   `json:"roi"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store is the hot KV surface: the engine writes after every cycle, the
// control API reads for health and status.
type Store interface {
	SetPoolState(ctx context.Context, m ledger.PoolMetrics) error
	SetEngineRunning(ctx context.Context, running bool) error
	PoolState(ctx context.Context) (*Snapshot, error)
	EngineRunning(ctx context.Context) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewAuto returns a Redis-backed store when addr is set, otherwise the
// in-process memory store.
func NewAuto(addr string, db int) Store {
	if addr == "" {
		return NewMemory()
	}
	return NewRedis(redis.NewClient(&redis.Options{Addr: addr, DB: db}))
}
