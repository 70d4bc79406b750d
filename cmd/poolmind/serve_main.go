package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/poolmind/poolmind/internal/config"
	httpapi "github.com/poolmind/poolmind/internal/interfaces/http"
)

// shutdownTimeout bounds the graceful drain of the API and engine.
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		flagHost   string
		flagPort   int
		flagNoLoop bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine loop and control API",
		Long: `Serve starts the trading cycle loop and the localhost control API,
then blocks until SIGINT or SIGTERM. --no-loop serves the API alone;
cycles then run only on demand via POST /api/v1/engine/cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if flagHost != "" {
				cfg.HTTP.Host = flagHost
			}
			if flagPort != 0 {
				cfg.HTTP.Port = flagPort
			}
			return runServe(cfg, flagNoLoop)
		},
	}

	cmd.Flags().StringVar(&flagHost, "host", "", "API bind host (overrides config)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "API bind port (overrides config)")
	cmd.Flags().BoolVar(&flagNoLoop, "no-loop", false, "Serve the API without the cycle loop")
	return cmd
}

func runServe(cfg *config.Config, noLoop bool) error {
	ctx := context.Background()

	a, err := buildApp(ctx, cfg, 0)
	if err != nil {
		return err
	}
	defer a.close()

	api, err := httpapi.New(httpapi.Config{
		Host: cfg.HTTP.Host,
		Port: cfg.HTTP.Port,
	}, httpapi.Deps{
		Engine:    a.engine,
		Ledger:    a.ledger,
		AppConfig: cfg,
		State:     a.state,
		History:   a.history,
		Source:    a.source,
		Metrics:   a.metrics,
	})
	if err != nil {
		return err
	}

	if noLoop {
		log.Info().Msg("Cycle loop disabled; engine runs on demand only")
	} else if err := a.engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("api", fmt.Sprintf("http://%s/api/v1/status", api.Addr())).
			Str("health", fmt.Sprintf("http://%s/health", api.Addr())).
			Str("metrics", fmt.Sprintf("http://%s/metrics", api.Addr())).
			Str("stream", fmt.Sprintf("ws://%s/ws/cycles", api.Addr())).
			Msg("Control API endpoints available")

		if err := api.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("control API: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Control API shutdown error")
	}
	if a.engine.IsRunning() {
		if err := a.engine.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Engine stop error")
		}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
