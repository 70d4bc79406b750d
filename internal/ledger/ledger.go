// Package ledger implements the pooled capital accounting model: participant
// deposits, a FIFO withdrawal queue, asset inventory, and proportional
// mark-to-market. All balances are fixed-point decimals; a single mutex
// serializes every mutation and coherent read.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateParticipant = errors.New("participant already exists")
	ErrUnknownParticipant   = errors.New("unknown participant")
	ErrOverdrawn            = errors.New("withdrawal exceeds participant value")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrNegativeCash         = errors.New("cash reserve would go negative")
	ErrAlreadySeeded        = errors.New("pool already has participants")
)

// WithdrawalStatus tracks a request through its lifecycle. A delayed request
// stays in the queue and is retried on the next processing pass.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalDelayed   WithdrawalStatus = "delayed"
)

// WithdrawalRequest is one queued withdrawal for a participant.
type WithdrawalRequest struct {
	Amount      decimal.Decimal
	RequestedAt time.Time
	Status      WithdrawalStatus
	ProcessedAt *time.Time
}

func (w WithdrawalRequest) open() bool {
	return w.Status == WithdrawalPending || w.Status == WithdrawalDelayed
}

// Participant holds one member's claim on the pool.
type Participant struct {
	ID                string
	InitialInvestment decimal.Decimal
	CurrentValue      decimal.Decimal
	JoinedAt          time.Time
	Withdrawals       []WithdrawalRequest
}

// AssetPosition is a held asset with its native amount and marked USD value.
type AssetPosition struct {
	Amount   decimal.Decimal
	ValueUSD decimal.Decimal
}

// WithdrawalResult reports the outcome of one request during a processing
// pass.
type WithdrawalResult struct {
	ParticipantID string           `json:"participant_id"`
	Amount        float64          `json:"amount"`
	Status        WithdrawalStatus `json:"status"`
}

// Ledger is the pool state. The zero value is not usable; construct with New.
type Ledger struct {
	mu sync.Mutex

	initialPoolValue decimal.Decimal
	poolValue        decimal.Decimal
	cashReserve      decimal.Decimal
	assets           map[string]AssetPosition
	participants     map[string]*Participant
	order            []string
	createdAt        time.Time
	updatedAt        time.Time
}

// New creates a ledger holding initialValue entirely as cash.
func New(initialValue decimal.Decimal) *Ledger {
	now := time.Now()
	return &Ledger{
		initialPoolValue: initialValue,
		poolValue:        initialValue,
		cashReserve:      initialValue,
		assets:           make(map[string]AssetPosition),
		participants:     make(map[string]*Participant),
		createdAt:        now,
		updatedAt:        now,
	}
}

// SeedParticipants creates count synthetic participants whose claims
// partition the existing pool with ±20% variation around the average. It
// does not grow the pool: seeded claims sum to slightly below pool value and
// the remainder is house dust. Only valid on a pool with no participants.
func (l *Ledger) SeedParticipants(count int) error {
	if count <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.participants) > 0 {
		return ErrAlreadySeeded
	}

	avg := l.poolValue.Div(decimal.NewFromInt(int64(count)))
	now := time.Now()
	for i := 0; i < count; i++ {
		variation := decimal.NewFromFloat(0.8 + 0.4*(float64(i)/float64(count)))
		investment := avg.Mul(variation)
		id := fmt.Sprintf("participant_%d", i+1)
		l.participants[id] = &Participant{
			ID:                id,
			InitialInvestment: investment,
			CurrentValue:      investment,
			JoinedAt:          now,
		}
		l.order = append(l.order, id)
	}
	l.updatedAt = now
	return nil
}

// AddParticipant deposits investment for a new participant, growing both the
// pool value and the cash reserve.
func (l *Ledger) AddParticipant(id string, investment decimal.Decimal) error {
	if investment.Sign() <= 0 {
		return fmt.Errorf("add participant %s: %w", id, ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.participants[id]; exists {
		return fmt.Errorf("add participant %s: %w", id, ErrDuplicateParticipant)
	}

	now := time.Now()
	l.participants[id] = &Participant{
		ID:                id,
		InitialInvestment: investment,
		CurrentValue:      investment,
		JoinedAt:          now,
	}
	l.order = append(l.order, id)
	l.poolValue = l.poolValue.Add(investment)
	l.cashReserve = l.cashReserve.Add(investment)
	l.updatedAt = now
	return nil
}

// RequestWithdrawal queues a pending withdrawal. No cash moves until a
// processing pass.
func (l *Ledger) RequestWithdrawal(id string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("request withdrawal for %s: %w", id, ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.participants[id]
	if !ok {
		return fmt.Errorf("request withdrawal for %s: %w", id, ErrUnknownParticipant)
	}
	if amount.GreaterThan(p.CurrentValue) {
		return fmt.Errorf("request withdrawal for %s: %w", id, ErrOverdrawn)
	}

	now := time.Now()
	p.Withdrawals = append(p.Withdrawals, WithdrawalRequest{
		Amount:      amount,
		RequestedAt: now,
		Status:      WithdrawalPending,
	})
	l.updatedAt = now
	return nil
}

// ProcessWithdrawals walks participants in insertion order and their open
// requests in FIFO order. A request covered by the cash reserve completes;
// one that is not is marked delayed and retried on the next pass. A delayed
// participant does not block later participants.
func (l *Ledger) ProcessWithdrawals() []WithdrawalResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []WithdrawalResult
	now := time.Now()

	for _, id := range l.order {
		p := l.participants[id]
		for i := range p.Withdrawals {
			w := &p.Withdrawals[i]
			if !w.open() {
				continue
			}
			if w.Amount.LessThanOrEqual(l.cashReserve) {
				w.Status = WithdrawalCompleted
				processedAt := now
				w.ProcessedAt = &processedAt

				l.cashReserve = l.cashReserve.Sub(w.Amount)
				l.poolValue = l.poolValue.Sub(w.Amount)
				p.CurrentValue = p.CurrentValue.Sub(w.Amount)
			} else {
				w.Status = WithdrawalDelayed
			}
			results = append(results, WithdrawalResult{
				ParticipantID: id,
				Amount:        w.Amount.InexactFloat64(),
				Status:        w.Status,
			})
		}
	}

	l.updatedAt = now
	return results
}

// UpdateAssetAllocation replaces the asset inventory and recomputes the cash
// reserve as pool value minus the marked asset total. An allocation that
// would drive cash negative is rejected without applying.
func (l *Ledger) UpdateAssetAllocation(assets map[string]AssetPosition) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	for _, pos := range assets {
		total = total.Add(pos.ValueUSD)
	}
	cash := l.poolValue.Sub(total)
	if cash.Sign() < 0 {
		return fmt.Errorf("allocate %s against pool %s: %w", total, l.poolValue, ErrNegativeCash)
	}

	l.assets = make(map[string]AssetPosition, len(assets))
	for symbol, pos := range assets {
		l.assets[symbol] = pos
	}
	l.cashReserve = cash
	l.updatedAt = time.Now()
	return nil
}

// MarkPoolValue revalues the pool and scales every participant's claim
// proportionally. A mark from a zero-valued pool cannot be attributed to
// participants and is logged instead.
func (l *Ledger) MarkPoolValue(newValue decimal.Decimal) error {
	if newValue.Sign() < 0 {
		return fmt.Errorf("mark pool to %s: %w", newValue, ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.poolValue
	l.poolValue = newValue

	if old.Sign() > 0 {
		ratio := newValue.Div(old)
		for _, p := range l.participants {
			p.CurrentValue = p.CurrentValue.Mul(ratio)
		}
	} else if newValue.Sign() > 0 {
		log.Warn().
			Str("new_value", newValue.String()).
			Msg("mark from zero pool leaves gain unattributed")
	}

	l.updatedAt = time.Now()
	return nil
}

// Value returns the current pool value.
func (l *Ledger) Value() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.poolValue
}

// InitialValue returns the pool value at creation.
func (l *Ledger) InitialValue() decimal.Decimal {
	return l.initialPoolValue
}

// CashReserve returns the unallocated cash portion of the pool.
func (l *Ledger) CashReserve() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cashReserve
}

// Assets returns a copy of the current asset inventory.
func (l *Ledger) Assets() map[string]AssetPosition {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]AssetPosition, len(l.assets))
	for symbol, pos := range l.assets {
		out[symbol] = pos
	}
	return out
}

// Drawdown returns (initial - current) / initial, zero floored, as a
// fraction. Used by the cycle circuit breaker.
func (l *Ledger) Drawdown() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialPoolValue.Sign() <= 0 {
		return 0
	}
	dd := l.initialPoolValue.Sub(l.poolValue).Div(l.initialPoolValue).InexactFloat64()
	if dd < 0 {
		return 0
	}
	return dd
}
