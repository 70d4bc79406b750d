// Package engine drives the observe, reason, act, reflect trading cycle:
// it pulls quote snapshots, scans them for cross-venue arbitrage, asks
// the strategy oracle (or its deterministic fallback) for a proposal,
// gates it on risk, simulates the executions, and folds the results back
// into the pool ledger, the case store, and the history ring.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/poolmind/poolmind/internal/cases"
	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/executor"
	"github.com/poolmind/poolmind/internal/ledger"
	"github.com/poolmind/poolmind/internal/market"
	"github.com/poolmind/poolmind/internal/metrics"
	"github.com/poolmind/poolmind/internal/oracle"
	"github.com/poolmind/poolmind/internal/persistence"
	"github.com/poolmind/poolmind/internal/risk"
)

// Cycle status values recorded in the history ring.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

const recentCycleCount = 5

var (
	ErrAlreadyRunning = errors.New("trading engine already running")
	ErrNotRunning     = errors.New("trading engine not running")
	ErrBusy           = errors.New("a trading cycle is already in flight")
)

// QuoteSource produces market snapshots. market.Source satisfies it.
type QuoteSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// HistoryStore persists cycle, trade, and pool state rows for later
// analysis. persistence.Store satisfies it.
type HistoryStore interface {
	SaveCycle(ctx context.Context, c persistence.Cycle) error
	SaveTrade(ctx context.Context, t persistence.Trade) error
	SavePoolState(ctx context.Context, p persistence.PoolState) error
}

// StateStore publishes the hot pool state and the loop flag for
// external readers.
type StateStore interface {
	SetPoolState(ctx context.Context, m ledger.PoolMetrics) error
	SetEngineRunning(ctx context.Context, running bool) error
}

// CycleRecord is one pass through the state machine as stored in the
// history ring and streamed to subscribers.
type CycleRecord struct {
	CycleID               string                   `json:"cycle_id"`
	Status                string                   `json:"status"`
	OpportunitiesFound    int                      `json:"opportunities_found"`
	OpportunitiesFiltered int                      `json:"opportunities_filtered"`
	Strategy              *domain.Proposal         `json:"strategy,omitempty"`
	RiskAssessment        *domain.Assessment       `json:"risk_assessment,omitempty"`
	Executions            []domain.ExecutionRecord `json:"executions"`
	PoolMetrics           ledger.PoolMetrics       `json:"pool_metrics"`
	Message               string                   `json:"message,omitempty"`
	Error                 string                   `json:"error,omitempty"`
	StartedAt             time.Time                `json:"started_at"`
	DurationSeconds       float64                  `json:"duration"`
}

// Stats are the cumulative engine counters since process start.
type Stats struct {
	OpportunitiesDetected int64   `json:"opportunities_detected"`
	OpportunitiesExecuted int64   `json:"opportunities_executed"`
	TotalProfitUSD        float64 `json:"total_profit"`
	FallbackActivations   int64   `json:"fallback_activations"`
	ErrorCount            int64   `json:"error_count"`
}

// Status is the operator view served by the control API.
type Status struct {
	Running      bool               `json:"is_running"`
	LastCycleAt  time.Time          `json:"last_cycle_time"`
	Breaker      BreakerState       `json:"circuit_breaker"`
	Stats        Stats              `json:"metrics"`
	PoolMetrics  ledger.PoolMetrics `json:"pool_metrics"`
	CycleCount   int                `json:"cycle_count"`
	RecentCycles []CycleRecord      `json:"recent_cycles"`
}

// Config tunes the orchestrator. Zero fields take defaults.
type Config struct {
	CycleInterval      time.Duration
	MinProfitPct       float64 // detector filter floor, percent
	MinVolumeUSD       float64 // detector filter floor, USD
	MaxPositionSizePct float64 // per-opportunity cap as a fraction of pool value
	HistorySize        int
	RetryBackoff       time.Duration // wait before the single snapshot retry
	Breaker            BreakerPolicy
}

func (c *Config) setDefaults() {
	if c.CycleInterval <= 0 {
		c.CycleInterval = 30 * time.Second
	}
	if c.MinProfitPct <= 0 {
		c.MinProfitPct = 0.1
	}
	if c.MinVolumeUSD <= 0 {
		c.MinVolumeUSD = 1000
	}
	if c.MaxPositionSizePct <= 0 || c.MaxPositionSizePct > 1 {
		c.MaxPositionSizePct = 0.10
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	c.Breaker.setDefaults()
}

// Deps wires the collaborating components. Ledger, Source, Detector,
// Gate, and Executor are required. Oracle, Memory, History, State, and
// Metrics may be nil and degrade to no-ops.
type Deps struct {
	Ledger   *ledger.Ledger
	Source   QuoteSource
	Detector *domain.Detector
	Oracle   oracle.StrategyOracle
	Gate     *risk.Gate
	Executor executor.TradeExecutor
	Memory   cases.Store
	History  HistoryStore
	State    StateStore
	Venues   map[string]market.VenueClient
	Metrics  *metrics.Metrics
}

// Engine owns the trading loop. All mutations of the pool ledger during
// a cycle happen on the engine's goroutine; concurrent API access goes
// through the ledger's own lock.
type Engine struct {
	cfg      Config
	ledger   *ledger.Ledger
	source   QuoteSource
	detector *domain.Detector
	oracle   oracle.StrategyOracle
	fallback oracle.Fallback
	gate     *risk.Gate
	exec     executor.TradeExecutor
	memory   cases.Store
	history  HistoryStore
	state    StateStore
	venues   map[string]market.VenueClient
	metrics  *metrics.Metrics

	ring    *historyRing
	breaker *policyBreaker

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastCycleAt time.Time

	statsMu sync.Mutex
	stats   Stats

	cycleActive atomic.Bool

	subMu sync.Mutex
	subs  map[chan CycleRecord]struct{}
}

// New validates the wiring and returns an idle engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	cfg.setDefaults()
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("engine: ledger is required")
	case deps.Source == nil:
		return nil, errors.New("engine: quote source is required")
	case deps.Detector == nil:
		return nil, errors.New("engine: detector is required")
	case deps.Gate == nil:
		return nil, errors.New("engine: risk gate is required")
	case deps.Executor == nil:
		return nil, errors.New("engine: executor is required")
	}
	return &Engine{
		cfg:      cfg,
		ledger:   deps.Ledger,
		source:   deps.Source,
		detector: deps.Detector,
		oracle:   deps.Oracle,
		gate:     deps.Gate,
		exec:     deps.Executor,
		memory:   deps.Memory,
		history:  deps.History,
		state:    deps.State,
		venues:   deps.Venues,
		metrics:  deps.Metrics,
		ring:     newHistoryRing(cfg.HistorySize),
		breaker:  newPolicyBreaker(cfg.Breaker),
		subs:     make(map[chan CycleRecord]struct{}),
	}, nil
}

// Start launches the continuous loop. It fails when already running.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.loop(e.stopCh, e.doneCh)
	e.mu.Unlock()

	e.publishRunning(true)
	log.Info().Dur("interval", e.cfg.CycleInterval).Msg("Starting trading engine")
	return nil
}

// Stop requests shutdown and waits for the in-flight cycle to flush its
// Reflect stage, or for ctx to expire.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.running = false
	close(e.stopCh)
	doneCh := e.doneCh
	e.mu.Unlock()

	log.Info().Msg("Trading engine stop requested")
	select {
	case <-doneCh:
		e.publishRunning(false)
		log.Info().Msg("Trading engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publishRunning mirrors the loop flag to the hot state store so other
// processes can see it. Failures log; the in-memory flag is the truth.
func (e *Engine) publishRunning(running bool) {
	if e.state == nil {
		return
	}
	if err := e.state.SetEngineRunning(context.Background(), running); err != nil {
		log.Warn().Err(err).Bool("running", running).Msg("Engine state write failed")
	}
}

// IsRunning reports whether the continuous loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// RunOneCycle executes a single cycle on the caller's goroutine. It is
// rejected while the continuous loop is active or another manual cycle
// is in flight.
func (e *Engine) RunOneCycle(ctx context.Context) (CycleRecord, error) {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if running {
		return CycleRecord{}, ErrBusy
	}
	if !e.cycleActive.CompareAndSwap(false, true) {
		return CycleRecord{}, ErrBusy
	}
	defer e.cycleActive.Store(false)
	return e.runCycle(ctx), nil
}

// Status snapshots the engine for the control API.
func (e *Engine) Status() Status {
	e.mu.Lock()
	running := e.running
	last := e.lastCycleAt
	e.mu.Unlock()

	e.statsMu.Lock()
	stats := e.stats
	e.statsMu.Unlock()

	return Status{
		Running:      running,
		LastCycleAt:  last,
		Breaker:      e.breaker.state(),
		Stats:        stats,
		PoolMetrics:  e.ledger.Metrics(),
		CycleCount:   e.ring.size(),
		RecentCycles: e.ring.last(recentCycleCount),
	}
}

// History returns up to n recent cycle records, oldest first.
func (e *Engine) History(n int) []CycleRecord {
	return e.ring.last(n)
}

// Subscribe registers a listener for completed cycle records. Slow
// listeners miss records rather than stalling the loop. The returned
// cancel drops the registration and closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan CycleRecord, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan CycleRecord, buffer)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, ch)
			close(ch)
			e.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (e *Engine) publish(rec CycleRecord) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (e *Engine) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ctx := context.Background()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		start := time.Now()
		e.cycleActive.Store(true)
		e.runCycle(ctx)
		e.cycleActive.Store(false)

		if st := e.breaker.state(); st.Tripped {
			log.Warn().
				Str("reason", st.Reason).
				Time("resume_at", st.ResumeAt).
				Msg("Circuit breaker triggered - pausing trading")
			if !sleepInterruptible(stopCh, time.Until(st.ResumeAt)) {
				return
			}
			e.breaker.resume()
			if e.metrics != nil {
				e.metrics.BreakerTripped.Set(0)
			}
			log.Info().Msg("Circuit breaker cooldown elapsed, resuming trading")
			continue
		}

		if wait := e.cfg.CycleInterval - time.Since(start); wait > 0 {
			if !sleepInterruptible(stopCh, wait) {
				return
			}
		}
	}
}

func sleepInterruptible(stopCh <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stopCh:
		return false
	}
}

func newCycleID(t time.Time) string {
	return fmt.Sprintf("cycle_%d_%s", t.Unix(), uuid.New().String()[:8])
}

// runCycle is one full pass: Observe -> Reason -> Act -> Reflect.
func (e *Engine) runCycle(ctx context.Context) CycleRecord {
	start := time.Now()
	rec := CycleRecord{
		CycleID:    newCycleID(start),
		Status:     StatusCompleted,
		Executions: []domain.ExecutionRecord{},
		StartedAt:  start,
	}
	var st cycleStats

	log.Info().Str("cycle_id", rec.CycleID).Msg("Starting trading cycle")

	snap, err := e.observe(ctx)
	if err != nil {
		rec.Status = StatusError
		rec.Error = err.Error()
		st.errored = true
		log.Error().Err(err).Str("cycle_id", rec.CycleID).Msg("Market observation failed")
		return e.finishCycle(ctx, rec, st, start)
	}

	opps := e.detector.Scan(snap)
	filtered := domain.Filter(opps, e.cfg.MinProfitPct, e.cfg.MinVolumeUSD)
	rec.OpportunitiesFound = len(opps)
	rec.OpportunitiesFiltered = len(filtered)
	st.detected = len(opps)
	log.Info().
		Int("found", len(opps)).
		Int("filtered", len(filtered)).
		Msg("Arbitrage scan complete")

	if len(filtered) == 0 {
		rec.Message = "No viable arbitrage opportunities found"
		return e.finishCycle(ctx, rec, st, start)
	}

	pool := e.ledger.Metrics()
	proposal, usedFallback := e.reason(ctx, pool, snap, filtered)
	st.fallback = usedFallback
	rec.Strategy = &proposal

	assessment := e.gate.Assess(ctx, pool, proposal, filtered)
	rec.RiskAssessment = &assessment

	var actSeconds float64
	if e.gate.Approve(assessment) {
		actStart := time.Now()
		rec.Executions = e.act(ctx, pool, proposal, filtered)
		actSeconds = time.Since(actStart).Seconds()
		st.executed = len(rec.Executions)
		for _, ex := range rec.Executions {
			if ex.Success {
				st.succeeded++
			}
			st.profit += ex.ProfitUSD
		}
	} else {
		log.Info().
			Int("risk_score", assessment.Score).
			Int("threshold", e.gate.Threshold()).
			Msg("Skipping execution due to high risk score")
	}

	if len(rec.Executions) > 0 {
		degraded, err := e.reflect(ctx, rec.Executions, pool, actSeconds)
		switch {
		case err != nil:
			rec.Status = StatusError
			rec.Error = err.Error()
			st.errored = true
			log.Error().Err(err).Str("cycle_id", rec.CycleID).Msg("Reflect failed")
		case degraded:
			st.errored = true
		}
	}

	return e.finishCycle(ctx, rec, st, start)
}

// observe fetches a snapshot, retrying once after a short backoff since
// venue hiccups are usually transient.
func (e *Engine) observe(ctx context.Context) (domain.Snapshot, error) {
	snap, err := e.source.Snapshot(ctx)
	if err == nil {
		return snap, nil
	}
	log.Warn().Err(err).Msg("Snapshot fetch failed, retrying once")
	select {
	case <-time.After(e.cfg.RetryBackoff):
	case <-ctx.Done():
		return domain.Snapshot{}, ctx.Err()
	}
	return e.source.Snapshot(ctx)
}

// reason asks the oracle for a strategy and falls back to the
// deterministic tiers when it fails. The second return reports whether
// this cycle counts as a fallback activation; running without an oracle
// configured is a deliberate mode, not a degradation.
func (e *Engine) reason(ctx context.Context, pool ledger.PoolMetrics, snap domain.Snapshot, opps []domain.Opportunity) (domain.Proposal, bool) {
	if e.oracle == nil {
		return e.fallback.Propose(pool, opps), false
	}
	proposal, err := e.oracle.Propose(ctx, pool, snap, opps)
	if err == nil {
		return proposal, false
	}
	log.Warn().Err(err).Msg("Strategy oracle failed, using fallback strategy")
	return e.fallback.Propose(pool, opps), true
}

// act sizes and executes each selected opportunity, clamping to the
// per-position pool cap and the opportunity's own liquidity.
func (e *Engine) act(ctx context.Context, pool ledger.PoolMetrics, proposal domain.Proposal, opps []domain.Opportunity) []domain.ExecutionRecord {
	records := []domain.ExecutionRecord{}
	poolCap := pool.TotalPoolValue * e.cfg.MaxPositionSizePct
	for i, idx := range proposal.SelectedOpportunities {
		if idx < 0 || idx >= len(opps) || i >= len(proposal.PositionSizes) {
			log.Warn().Int("index", idx).Msg("Dropping unusable proposal entry")
			continue
		}
		size := proposal.PositionSizes[i]
		if size > poolCap {
			size = poolCap
		}
		if size > opps[idx].MaxVolumeUSD {
			size = opps[idx].MaxVolumeUSD
		}
		if size <= 0 {
			continue
		}
		records = append(records, e.exec.Execute(ctx, opps[idx], size, e.venues))
	}
	return records
}

// reflect marks the pool by the realized profit and files one case per
// execution. Case writes retry once and then degrade to a log line; a
// failed mark aborts the cycle since it means the ledger rejected the new
// value.
func (e *Engine) reflect(ctx context.Context, executions []domain.ExecutionRecord, pool ledger.PoolMetrics, actSeconds float64) (bool, error) {
	var profit float64
	for _, ex := range executions {
		profit += ex.ProfitUSD
	}
	newValue := e.ledger.Value().Add(decimal.NewFromFloat(profit))
	if err := e.ledger.MarkPoolValue(newValue); err != nil {
		return false, fmt.Errorf("mark pool value: %w", err)
	}
	log.Info().Float64("total_profit", profit).Msg("Reflection complete")

	if e.memory == nil {
		return false, nil
	}
	degraded := false
	perExecution := actSeconds / float64(len(executions))
	for _, ex := range executions {
		c := cases.Context{
			PoolValue:        pool.TotalPoolValue,
			ParticipantCount: pool.ParticipantCount,
			SpreadPct:        ex.Opportunity.SpreadPct,
			PositionSizeUSD:  ex.SizeUSD,
		}
		o := cases.Outcome{
			ProfitUSD:        ex.ProfitUSD,
			ExecutionSeconds: perExecution,
			SlippagePct:      (ex.BuySlippagePct + ex.SellSlippagePct) / 2,
		}
		err := e.memory.Record(ctx, c, o)
		if err != nil {
			err = e.memory.Record(ctx, c, o)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Case store write failed after retry")
			degraded = true
		}
	}
	return degraded, nil
}

// finishCycle stamps the record, persists it, updates counters and the
// breaker window, and hands the record to subscribers.
func (e *Engine) finishCycle(ctx context.Context, rec CycleRecord, st cycleStats, start time.Time) CycleRecord {
	rec.PoolMetrics = e.ledger.Metrics()
	rec.DurationSeconds = time.Since(start).Seconds()

	if !e.persistCycle(ctx, rec) {
		st.errored = true
	}
	if e.state != nil {
		if err := e.state.SetPoolState(ctx, rec.PoolMetrics); err != nil {
			log.Warn().Err(err).Msg("Hot pool state write failed")
		}
	}

	e.ring.append(rec)
	e.updateStats(st)

	reason, trippedNow := e.breaker.observe(st, e.ledger.Drawdown())
	if trippedNow {
		log.Warn().Str("reason", reason).Msg("Circuit breaker conditions met")
	}
	e.observeMetrics(rec, st)
	e.publish(rec)

	e.mu.Lock()
	e.lastCycleAt = time.Now()
	e.mu.Unlock()

	log.Info().
		Str("cycle_id", rec.CycleID).
		Str("status", rec.Status).
		Int("executions", len(rec.Executions)).
		Float64("duration_s", rec.DurationSeconds).
		Float64("pool_value", rec.PoolMetrics.TotalPoolValue).
		Msg("Trading cycle complete")
	return rec
}

// persistCycle writes the cycle, its trades, and the pool state to the
// history store, retrying the batch once. Returns false when the second
// attempt also failed.
func (e *Engine) persistCycle(ctx context.Context, rec CycleRecord) bool {
	if e.history == nil {
		return true
	}
	var profit float64
	for _, ex := range rec.Executions {
		profit += ex.ProfitUSD
	}
	cycle := persistence.Cycle{
		CycleID:            rec.CycleID,
		Status:             rec.Status,
		OpportunitiesFound: rec.OpportunitiesFound,
		ExecutionCount:     len(rec.Executions),
		ProfitUSD:          profit,
		DurationSeconds:    rec.DurationSeconds,
		Payload:            rec,
	}
	poolState := persistence.PoolState{
		TotalValueUSD:    rec.PoolMetrics.TotalPoolValue,
		CashReserveUSD:   rec.PoolMetrics.CashReserve,
		ParticipantCount: rec.PoolMetrics.ParticipantCount,
		LiquidityRatio:   rec.PoolMetrics.CashRatio,
	}
	save := func() error {
		if err := e.history.SaveCycle(ctx, cycle); err != nil {
			return fmt.Errorf("save cycle: %w", err)
		}
		for _, ex := range rec.Executions {
			trade := persistence.Trade{
				CycleID:     rec.CycleID,
				Symbol:      ex.Opportunity.Symbol,
				BuyVenue:    ex.Opportunity.BuyVenue,
				SellVenue:   ex.Opportunity.SellVenue,
				SizeUSD:     ex.SizeUSD,
				ProfitUSD:   ex.ProfitUSD,
				SlippagePct: (ex.BuySlippagePct + ex.SellSlippagePct) / 2,
				Success:     ex.Success,
				Payload:     ex,
			}
			if err := e.history.SaveTrade(ctx, trade); err != nil {
				return fmt.Errorf("save trade: %w", err)
			}
		}
		if err := e.history.SavePoolState(ctx, poolState); err != nil {
			return fmt.Errorf("save pool state: %w", err)
		}
		return nil
	}
	err := save()
	if err != nil {
		log.Warn().Err(err).Str("cycle_id", rec.CycleID).Msg("History write failed, retrying")
		err = save()
	}
	if err != nil {
		log.Error().Err(err).Str("cycle_id", rec.CycleID).Msg("History write failed after retry")
		return false
	}
	return true
}

func (e *Engine) updateStats(st cycleStats) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats.OpportunitiesDetected += int64(st.detected)
	e.stats.OpportunitiesExecuted += int64(st.executed)
	e.stats.TotalProfitUSD += st.profit
	if st.fallback {
		e.stats.FallbackActivations++
	}
	if st.errored {
		e.stats.ErrorCount++
	}
}

func (e *Engine) observeMetrics(rec CycleRecord, st cycleStats) {
	if e.metrics == nil {
		return
	}
	e.metrics.CyclesTotal.WithLabelValues(rec.Status).Inc()
	e.metrics.CycleDuration.Observe(rec.DurationSeconds)
	e.metrics.OpportunitiesDetected.Add(float64(st.detected))
	e.metrics.OpportunitiesExecuted.Add(float64(st.executed))
	e.metrics.RealizedProfitUSD.Add(st.profit)
	if st.fallback {
		e.metrics.FallbackActivations.Inc()
	}
	if st.errored {
		e.metrics.ErrorsTotal.Inc()
	}
	if e.breaker.state().Tripped {
		e.metrics.BreakerTripped.Set(1)
	} else {
		e.metrics.BreakerTripped.Set(0)
	}
	e.metrics.ObservePool(rec.PoolMetrics.TotalPoolValue, rec.PoolMetrics.CashReserve, rec.PoolMetrics.ParticipantCount)
}
