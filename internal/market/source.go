package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/poolmind/poolmind/internal/domain"
)

// SourceConfig tunes the per-venue fetch guards and the snapshot cache.
type SourceConfig struct {
	CacheTTL        time.Duration
	VenueRPS        float64
	VenueBurst      int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (c *SourceConfig) setDefaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Second
	}
	if c.VenueRPS <= 0 {
		c.VenueRPS = 5
	}
	if c.VenueBurst <= 0 {
		c.VenueBurst = 5
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 3
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Source fans a quote fetch out to every venue, guards each with a token
// bucket and a circuit breaker, and merges the responses into one snapshot.
// Snapshots are cached for the configured TTL so back-to-back cycles reuse
// the same view. Venue failures degrade the snapshot; only a total outage
// fails the fetch.
type Source struct {
	venues   []VenueClient
	symbols  []string
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
	ttl      time.Duration

	mu        sync.Mutex
	cached    domain.Snapshot
	fetchedAt time.Time
}

// NewSource builds a Source over the given venues for a fixed symbol set.
func NewSource(venues []VenueClient, symbols []string, cfg SourceConfig) *Source {
	cfg.setDefaults()

	s := &Source{
		venues:   venues,
		symbols:  symbols,
		limiters: make(map[string]*rate.Limiter, len(venues)),
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(venues)),
		ttl:      cfg.CacheTTL,
	}
	for _, v := range venues {
		name := v.Name()
		s.limiters[name] = rate.NewLimiter(rate.Limit(cfg.VenueRPS), cfg.VenueBurst)
		s.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("venue", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("venue breaker state change")
			},
		})
	}
	return s
}

// Symbols returns the configured symbol set.
func (s *Source) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Snapshot returns the current merged market view, serving the cached copy
// while it is fresh. It returns an error only when every venue fails.
func (s *Source) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	if !s.cached.Empty() && time.Since(s.fetchedAt) < s.ttl {
		snap := s.cached
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	type venueResult struct {
		name   string
		quotes map[string]domain.Quote
		err    error
	}

	results := make(chan venueResult, len(s.venues))
	for _, v := range s.venues {
		go func(v VenueClient) {
			quotes, err := s.fetchVenue(ctx, v)
			results <- venueResult{name: v.Name(), quotes: quotes, err: err}
		}(v)
	}

	snap := domain.Snapshot{
		Quotes:    make(map[string]map[string]domain.Quote),
		Timestamp: time.Now(),
	}
	var okCount int
	var lastErr error
	for range s.venues {
		r := <-results
		if r.err != nil {
			lastErr = fmt.Errorf("venue %s: %w", r.name, r.err)
			log.Warn().Err(r.err).Str("venue", r.name).Msg("venue fetch failed")
			continue
		}
		okCount++
		for symbol, q := range r.quotes {
			if !q.Valid() {
				log.Debug().Str("venue", r.name).Str("symbol", symbol).Msg("dropping invalid quote")
				continue
			}
			if snap.Quotes[symbol] == nil {
				snap.Quotes[symbol] = make(map[string]domain.Quote)
			}
			snap.Quotes[symbol][r.name] = q
		}
	}

	if okCount == 0 {
		return domain.Snapshot{}, fmt.Errorf("all %d venues failed: %w", len(s.venues), lastErr)
	}

	s.mu.Lock()
	s.cached = snap
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	log.Debug().
		Int("venues_ok", okCount).
		Int("venues_total", len(s.venues)).
		Int("quotes", snap.QuoteCount()).
		Msg("market snapshot collected")
	return snap, nil
}

func (s *Source) fetchVenue(ctx context.Context, v VenueClient) (map[string]domain.Quote, error) {
	if err := s.limiters[v.Name()].Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	res, err := s.breakers[v.Name()].Execute(func() (interface{}, error) {
		return v.FetchQuotes(ctx, s.symbols)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]domain.Quote), nil
}

// VenueHealth reports each venue's breaker state for health endpoints.
func (s *Source) VenueHealth() map[string]string {
	out := make(map[string]string, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State().String()
	}
	return out
}
