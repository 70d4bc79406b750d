package state

import (
	"context"
	"sync"
	"time"

	"github.com/poolmind/poolmind/internal/ledger"
)

// Memory is the Store used when no Redis address is configured. A
// single-node deployment loses nothing: the control API reads from the
// same process that writes.
type Memory struct {
	mu      sync.Mutex
	snap    *Snapshot
	running bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SetPoolState(_ context.Context, pm ledger.PoolMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &Snapshot{
		TotalValueUSD:    pm.TotalPoolValue,
		CashReserveUSD:   pm.CashReserve,
		ParticipantCount: pm.ParticipantCount,
		ROI:              pm.ROI,
		UpdatedAt:        time.Now().UTC(),
	}
	return nil
}

func (m *Memory) SetEngineRunning(_ context.Context, running bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
	return nil
}

func (m *Memory) PoolState(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	out := *m.snap
	return &out, nil
}

func (m *Memory) EngineRunning(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
