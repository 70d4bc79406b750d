package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AssetMetrics is the reporting view of one held asset.
type AssetMetrics struct {
	Amount   float64 `json:"amount"`
	ValueUSD float64 `json:"value_usd"`
}

// PoolMetrics is a coherent snapshot of pool-level reporting figures. ROI is
// a fraction over participant deposits, not a percentage.
type PoolMetrics struct {
	TotalPoolValue   float64                 `json:"total_pool_value"`
	InitialPoolValue float64                 `json:"initial_pool_value"`
	CashReserve      float64                 `json:"cash_reserve"`
	CashRatio        float64                 `json:"cash_ratio"`
	ROI              float64                 `json:"roi"`
	ParticipantCount int                     `json:"participant_count"`
	AssetCount       int                     `json:"asset_count"`
	Assets           map[string]AssetMetrics `json:"assets"`
	PoolAgeDays      float64                 `json:"pool_age_days"`
	LastUpdate       time.Time               `json:"last_update"`
}

// ParticipantMetrics is the reporting view of one participant.
type ParticipantMetrics struct {
	ID                 string    `json:"id"`
	InitialInvestment  float64   `json:"initial_investment"`
	CurrentValue       float64   `json:"current_value"`
	ROI                float64   `json:"roi"`
	JoinedAt           time.Time `json:"joined_at"`
	OpenWithdrawals    int       `json:"open_withdrawals"`
	PendingWithdrawUSD float64   `json:"pending_withdraw_usd"`
}

// WithdrawalView is the reporting view of one queued or settled request.
type WithdrawalView struct {
	Amount      float64          `json:"amount"`
	RequestedAt time.Time        `json:"requested_at"`
	Status      WithdrawalStatus `json:"status"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

// ParticipantDetail extends ParticipantMetrics with the full withdrawal
// history.
type ParticipantDetail struct {
	ParticipantMetrics
	Withdrawals []WithdrawalView `json:"withdrawals"`
}

// Metrics returns a snapshot of pool-level figures under one lock
// acquisition.
func (l *Ledger) Metrics() PoolMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	assets := make(map[string]AssetMetrics, len(l.assets))
	for symbol, pos := range l.assets {
		assets[symbol] = AssetMetrics{
			Amount:   pos.Amount.InexactFloat64(),
			ValueUSD: pos.ValueUSD.InexactFloat64(),
		}
	}

	m := PoolMetrics{
		TotalPoolValue:   l.poolValue.InexactFloat64(),
		InitialPoolValue: l.initialPoolValue.InexactFloat64(),
		CashReserve:      l.cashReserve.InexactFloat64(),
		ParticipantCount: len(l.participants),
		AssetCount:       len(l.assets),
		Assets:           assets,
		PoolAgeDays:      time.Since(l.createdAt).Hours() / 24,
		LastUpdate:       l.updatedAt,
	}
	if l.poolValue.Sign() > 0 {
		m.CashRatio = l.cashReserve.Div(l.poolValue).InexactFloat64()
	}
	m.ROI = l.roiLocked()
	return m
}

// roiLocked computes (sum current - sum initial) / sum initial over all
// participants. Caller holds the mutex.
func (l *Ledger) roiLocked() float64 {
	initial := decimal.Zero
	current := decimal.Zero
	for _, p := range l.participants {
		initial = initial.Add(p.InitialInvestment)
		current = current.Add(p.CurrentValue)
	}
	if initial.Sign() <= 0 {
		return 0
	}
	return current.Sub(initial).Div(initial).InexactFloat64()
}

// Participants returns reporting views in insertion order.
func (l *Ledger) Participants() []ParticipantMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ParticipantMetrics, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.participantMetricsLocked(l.participants[id]))
	}
	return out
}

// Participant returns the detail view for one participant, including its
// withdrawal history.
func (l *Ledger) Participant(id string) (ParticipantDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.participants[id]
	if !ok {
		return ParticipantDetail{}, fmt.Errorf("participant %s: %w", id, ErrUnknownParticipant)
	}

	detail := ParticipantDetail{
		ParticipantMetrics: l.participantMetricsLocked(p),
		Withdrawals:        make([]WithdrawalView, 0, len(p.Withdrawals)),
	}
	for _, w := range p.Withdrawals {
		detail.Withdrawals = append(detail.Withdrawals, WithdrawalView{
			Amount:      w.Amount.InexactFloat64(),
			RequestedAt: w.RequestedAt,
			Status:      w.Status,
			ProcessedAt: w.ProcessedAt,
		})
	}
	return detail, nil
}

func (l *Ledger) participantMetricsLocked(p *Participant) ParticipantMetrics {
	m := ParticipantMetrics{
		ID:                p.ID,
		InitialInvestment: p.InitialInvestment.InexactFloat64(),
		CurrentValue:      p.CurrentValue.InexactFloat64(),
		JoinedAt:          p.JoinedAt,
	}
	if p.InitialInvestment.Sign() > 0 {
		m.ROI = p.CurrentValue.Sub(p.InitialInvestment).Div(p.InitialInvestment).InexactFloat64()
	}
	pendingUSD := decimal.Zero
	for _, w := range p.Withdrawals {
		if w.open() {
			m.OpenWithdrawals++
			pendingUSD = pendingUSD.Add(w.Amount)
		}
	}
	m.PendingWithdrawUSD = pendingUSD.InexactFloat64()
	return m
}
