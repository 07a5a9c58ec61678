package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background sync",
	Long: `Serve the operation API on the configured listen address together
with /health, /ready, /live and /metrics. The auto-sync loop refreshes every
server on the configured interval and the health monitor probes each
appliance in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}
		logger := log.WithComponent("serve")

		a, err := newApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.close()
		metrics.RegisterComponent("storage", true, a.store.Path())

		a.broker.Start()
		defer a.broker.Stop()

		sub := a.broker.Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			logEvents(logger, sub)
		}()

		migrated, err := a.servers.MigrateAll(false)
		if err != nil {
			logger.Warn().Err(err).Msg("Credential migration failed")
		} else if len(migrated.Migrated) > 0 {
			logger.Info().Int("count", len(migrated.Migrated)).Msg("Encrypted legacy passwords")
		}

		collector := metrics.NewCollector(a.store)
		collector.Start()
		a.engine.Start()
		if a.monitor != nil {
			a.monitor.Start()
		}

		server := api.NewServer(a.service, a.broker, cfg.APIToken)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.Listen)
		}()

		logger.Info().
			Str("version", Version).
			Str("listen", cfg.Listen).
			Str("data_dir", cfg.DataDir).
			Bool("auth", cfg.APIToken != "").
			Msg("Burrow is running")

		var serveErr error
		select {
		case <-cmd.Context().Done():
			logger.Info().Msg("Shutting down")
		case serveErr = <-errCh:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API shutdown incomplete")
		}
		if a.monitor != nil {
			a.monitor.Stop()
		}
		a.engine.Stop()
		collector.Stop()

		a.broker.Unsubscribe(sub)
		<-done

		if serveErr != nil {
			return fmt.Errorf("API server error: %w", serveErr)
		}
		logger.Info().Msg("Shutdown complete")
		return nil
	},
}

func logEvents(logger zerolog.Logger, sub events.Subscriber) {
	for event := range sub {
		e := logger.Debug()
		if event.Type == events.EventRulesFailed || event.Type == events.EventServerHealth {
			e = logger.Info()
		}
		e.Str("event", string(event.Type)).
			Str("server_id", event.ServerID).
			Str("message", event.Message).
			Msg("Event")
	}
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides listen)")
}
