package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/poolmind/poolmind/internal/ledger"
)

// Hot-path writes happen once per cycle; a short deadline keeps a sick
// Redis from stalling the loop.
const opTimeout = 500 * time.Millisecond

// Redis publishes the pool state to a shared Redis instance.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
	now     func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, timeout: opTimeout, now: time.Now}
}

// SetPoolState writes the pool:state hash. Fields go out as explicit
// pairs so the command shape stays stable.
func (s *Redis) SetPoolState(ctx context.Context, m ledger.PoolMetrics) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.client.HSet(ctx, poolStateKey,
		"total_value", m.TotalPoolValue,
		"cash_reserve", m.CashReserve,
		"participant_count", m.ParticipantCount,
		"roi", m.ROI,
		"updated_at", s.now().UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("write pool state: %w", err)
	}
	return nil
}

func (s *Redis) SetEngineRunning(ctx context.Context, running bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, engineRunningKey, strconv.FormatBool(running), 0).Err(); err != nil {
		return fmt.Errorf("write engine flag: %w", err)
	}
	return nil
}

// PoolState reads the hash back, returning nil when nothing has been
// published yet.
func (s *Redis) PoolState(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	fields, err := s.client.HGetAll(ctx, poolStateKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read pool state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseSnapshot(fields)
}

func (s *Redis) EngineRunning(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.client.Get(ctx, engineRunningKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read engine flag: %w", err)
	}
	return v == "true", nil
}

func (s *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func parseSnapshot(fields map[string]string) (*Snapshot, error) {
	snap := &Snapshot{}
	for name, dst := range map[string]*float64{
		"total_value":  &snap.TotalValueUSD,
		"cash_reserve": &snap.CashReserveUSD,
		"roi":          &snap.ROI,
	} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = f
	}
	if v, ok := fields["participant_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse participant_count: %w", err)
		}
		snap.ParticipantCount = n
	}
	if v, ok := fields["updated_at"]; ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		snap.UpdatedAt = t
	}
	return snap, nil
}
