package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/poolmind/poolmind/internal/cases"
	"github.com/poolmind/poolmind/internal/config"
	"github.com/poolmind/poolmind/internal/domain"
	"github.com/poolmind/poolmind/internal/engine"
	"github.com/poolmind/poolmind/internal/executor"
	"github.com/poolmind/poolmind/internal/infrastructure/state"
	"github.com/poolmind/poolmind/internal/ledger"
	"github.com/poolmind/poolmind/internal/market"
	"github.com/poolmind/poolmind/internal/metrics"
	"github.com/poolmind/poolmind/internal/oracle"
	"github.com/poolmind/poolmind/internal/persistence"
	"github.com/poolmind/poolmind/internal/persistence/postgres"
	"github.com/poolmind/poolmind/internal/risk"
)

// app is the assembled process: every component wired per the resolved
// configuration, ready for the serve loop or a one-shot cycle.
type app struct {
	cfg     *config.Config
	ledger  *ledger.Ledger
	source  *market.Source
	engine  *engine.Engine
	state   state.Store
	history persistence.Store
	metrics *metrics.Metrics
}

// buildApp wires the pool ledger, market feed, advisory, risk gate,
// executor, stores, and engine from the configuration. seed fixes the
// simulated feed and fill randomness; pass 0 for a time-derived seed.
func buildApp(ctx context.Context, cfg *config.Config, seed int64) (*app, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	if !cfg.SandboxMode {
		log.Warn().Msg("Live execution is not implemented; continuing with the simulator")
	}

	led := ledger.New(decimal.NewFromFloat(cfg.Pool.InitialValueUSD))
	if n := cfg.Pool.InitialParticipants; n > 0 {
		if err := led.SeedParticipants(n); err != nil {
			return nil, fmt.Errorf("seed participants: %w", err)
		}
		log.Info().Int("count", n).Msg("Seeded synthetic participants")
	}

	venues := market.NewSimVenues(seed)
	venueMap := make(map[string]market.VenueClient, len(venues))
	for _, v := range venues {
		venueMap[v.Name()] = v
	}
	source := market.NewSource(venues, cfg.Trading.Symbols, market.SourceConfig{})

	memory := cases.NewMemory()

	var advisory oracle.StrategyOracle
	var assessor risk.Assessor
	if cfg.Oracle.Enabled() {
		client := oracle.NewClient(oracle.Config{
			APIKey:           cfg.Oracle.APIKey,
			BaseURL:          cfg.Oracle.BaseURL,
			Model:            cfg.Oracle.Model,
			FallbackModel:    cfg.Oracle.FallbackModel,
			SecondaryBaseURL: cfg.Oracle.SecondaryBaseURL,
			SecondaryAPIKey:  cfg.Oracle.SecondaryAPIKey,
			Temperature:      cfg.Oracle.Temperature,
			MaxTokens:        cfg.Oracle.MaxTokens,
			Timeout:          cfg.Oracle.Timeout(),
		}, memory)
		advisory = client
		assessor = client
		log.Info().Str("model", cfg.Oracle.Model).Msg("Strategy advisory enabled")
	} else {
		log.Info().Msg("Strategy advisory disabled; deterministic fallback active")
	}

	stateStore := state.NewAuto(cfg.Redis.Addr, cfg.Redis.DB)
	if cfg.Redis.Addr != "" {
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Hot state store on Redis")
	}

	var history persistence.Store = persistence.Nop{}
	if cfg.Postgres.DSN != "" {
		repo, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		history = repo
	}

	mets := metrics.New(nil)

	eng, err := engine.New(engine.Config{
		CycleInterval:      cfg.Trading.CycleInterval(),
		MinProfitPct:       cfg.Trading.MinProfitPct,
		MinVolumeUSD:       cfg.Trading.MinVolumeUSD,
		MaxPositionSizePct: cfg.Trading.MaxPositionSizePct,
	}, engine.Deps{
		Ledger:   led,
		Source:   source,
		Detector: domain.NewDetector(cfg.Trading.MinSpreadPct, nil),
		Oracle:   advisory,
		Gate:     risk.NewGate(assessor, cfg.Trading.RiskScoreThreshold),
		Executor: executor.NewSimulator(domain.DefaultFeePct, seed),
		Memory:   memory,
		History:  history,
		State:    stateStore,
		Venues:   venueMap,
		Metrics:  mets,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return &app{
		cfg:     cfg,
		ledger:  led,
		source:  source,
		engine:  eng,
		state:   stateStore,
		history: history,
		metrics: mets,
	}, nil
}

// close releases the hot and history stores.
func (a *app) close() {
	if err := a.state.Close(); err != nil {
		log.Warn().Err(err).Msg("State store close failed")
	}
	if err := a.history.Close(); err != nil {
		log.Warn().Err(err).Msg("History store close failed")
	}
}
