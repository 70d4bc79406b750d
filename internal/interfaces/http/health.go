package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Component status values reported by /health.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDown     = "down"
	statusDisabled = "disabled"
)

type componentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]componentHealth `json:"components"`
}

// handleHealth aggregates the quote source, hot state store, history
// store, and oracle configuration. Anything degraded or down turns the
// overall status and the response code.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := map[string]componentHealth{
		"engine":  s.engineHealth(),
		"market":  s.marketHealth(),
		"state":   s.stateHealth(ctx),
		"history": s.historyHealth(ctx),
		"oracle":  s.oracleHealth(),
	}

	overall := "healthy"
	code := http.StatusOK
	for _, c := range components {
		if c.Status == statusDown || c.Status == statusDegraded {
			overall = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	s.writeJSON(w, code, healthResponse{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Components: components,
	})
}

func (s *Server) engineHealth() componentHealth {
	if s.engine.IsRunning() {
		return componentHealth{Status: statusOK, Detail: "loop running"}
	}
	return componentHealth{Status: statusOK, Detail: "idle"}
}

// marketHealth surfaces venue breakers that are not closed.
func (s *Server) marketHealth() componentHealth {
	if s.source == nil {
		return componentHealth{Status: statusDisabled}
	}
	var tripped []string
	for venue, st := range s.source.VenueHealth() {
		if st != "closed" {
			tripped = append(tripped, venue+":"+st)
		}
	}
	if len(tripped) == 0 {
		return componentHealth{Status: statusOK}
	}
	sort.Strings(tripped)
	return componentHealth{Status: statusDegraded, Detail: strings.Join(tripped, ", ")}
}

// stateHealth pings the hot store and flags a pool snapshot that has
// not been refreshed for many cycle intervals.
func (s *Server) stateHealth(ctx context.Context) componentHealth {
	if s.state == nil {
		return componentHealth{Status: statusDisabled}
	}
	if err := s.state.Ping(ctx); err != nil {
		return componentHealth{Status: statusDown, Detail: err.Error()}
	}
	snap, err := s.state.PoolState(ctx)
	if err != nil {
		return componentHealth{Status: statusDegraded, Detail: err.Error()}
	}
	if snap != nil {
		if age := time.Since(snap.UpdatedAt); age > s.staleAfter() {
			return componentHealth{
				Status: statusDegraded,
				Detail: fmt.Sprintf("pool state stale: %s old", age.Round(time.Second)),
			}
		}
	}
	if s.appCfg.Redis.Addr == "" {
		return componentHealth{Status: statusOK, Detail: "in-memory"}
	}
	return componentHealth{Status: statusOK}
}

func (s *Server) staleAfter() time.Duration {
	interval := s.appCfg.Trading.CycleInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return 10 * interval
}

func (s *Server) historyHealth(ctx context.Context) componentHealth {
	if s.history == nil || s.appCfg.Postgres.DSN == "" {
		return componentHealth{Status: statusDisabled}
	}
	if err := s.history.Ping(ctx); err != nil {
		return componentHealth{Status: statusDown, Detail: err.Error()}
	}
	return componentHealth{Status: statusOK}
}

func (s *Server) oracleHealth() componentHealth {
	if !s.appCfg.Oracle.Enabled() {
		return componentHealth{Status: statusDisabled, Detail: "deterministic fallback active"}
	}
	return componentHealth{Status: statusOK, Detail: s.appCfg.Oracle.Model}
}
