package engine

import (
	"fmt"
	"sync"
	"time"
)

// BreakerPolicy sets the trip conditions evaluated after every cycle.
// Zero fields take the defaults below.
type BreakerPolicy struct {
	// ErrorRate trips when errors / (detected + executed) exceeds it,
	// once at least MinOps operations have accrued in the window.
	ErrorRate float64
	// FallbackRate trips when fallback activations per successful
	// execution exceed it, with at least one execution attempted.
	FallbackRate float64
	// MaxDrawdown trips when (initial - current) / initial exceeds it.
	MaxDrawdown float64
	MinOps      int
	Cooldown    time.Duration
}

func (p *BreakerPolicy) setDefaults() {
	if p.ErrorRate <= 0 {
		p.ErrorRate = 0.15
	}
	if p.FallbackRate <= 0 {
		p.FallbackRate = 0.30
	}
	if p.MaxDrawdown <= 0 {
		p.MaxDrawdown = 0.15
	}
	if p.MinOps <= 0 {
		p.MinOps = 10
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 5 * time.Minute
	}
}

// BreakerState is the observable view of the cycle circuit breaker.
type BreakerState struct {
	Tripped   bool      `json:"tripped"`
	Reason    string    `json:"reason,omitempty"`
	TrippedAt time.Time `json:"tripped_at"`
	ResumeAt  time.Time `json:"resume_at"`
}

// cycleStats is the per-cycle delta folded into the breaker window.
type cycleStats struct {
	detected  int
	executed  int
	succeeded int
	fallback  bool
	errored   bool
	profit    float64
}

// policyBreaker accumulates cycle outcomes in a rolling window and trips
// when any policy threshold is crossed. The window restarts when the
// breaker resumes after its cooldown, so one bad stretch does not poison
// the rates forever.
type policyBreaker struct {
	policy BreakerPolicy

	mu        sync.Mutex
	detected  int
	executed  int
	succeeded int
	fallbacks int
	errors    int
	trippedAt time.Time
	reason    string
}

func newPolicyBreaker(policy BreakerPolicy) *policyBreaker {
	policy.setDefaults()
	return &policyBreaker{policy: policy}
}

// observe folds one cycle into the window and evaluates the trip
// conditions against it and the current pool drawdown fraction.
// The second return is true only on the observation that trips.
func (b *policyBreaker) observe(st cycleStats, drawdown float64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.detected += st.detected
	b.executed += st.executed
	b.succeeded += st.succeeded
	if st.fallback {
		b.fallbacks++
	}
	if st.errored {
		b.errors++
	}

	if !b.trippedAt.IsZero() {
		return b.reason, false
	}
	reason := b.evaluateLocked(drawdown)
	if reason == "" {
		return "", false
	}
	b.trippedAt = time.Now()
	b.reason = reason
	return reason, true
}

func (b *policyBreaker) evaluateLocked(drawdown float64) string {
	total := b.detected + b.executed
	if total >= b.policy.MinOps {
		if rate := float64(b.errors) / float64(total); rate > b.policy.ErrorRate {
			return fmt.Sprintf("error rate %.1f%% over %d operations", rate*100, total)
		}
	}
	if b.executed > 0 && b.fallbacks > 0 {
		// All executions failing while the fallback is active reads as
		// an unbounded fallback rate.
		if b.succeeded == 0 || float64(b.fallbacks)/float64(b.succeeded) > b.policy.FallbackRate {
			return fmt.Sprintf("%d fallback activations against %d successful executions", b.fallbacks, b.succeeded)
		}
	}
	if drawdown > b.policy.MaxDrawdown {
		return fmt.Sprintf("pool drawdown %.1f%%", drawdown*100)
	}
	return ""
}

func (b *policyBreaker) state() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BreakerState{
		Tripped: !b.trippedAt.IsZero(),
		Reason:  b.reason,
	}
	if st.Tripped {
		st.TrippedAt = b.trippedAt
		st.ResumeAt = b.trippedAt.Add(b.policy.Cooldown)
	}
	return st
}

// resume clears the trip and starts a fresh window.
func (b *policyBreaker) resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detected, b.executed, b.succeeded, b.fallbacks, b.errors = 0, 0, 0, 0, 0
	b.trippedAt = time.Time{}
	b.reason = ""
}
