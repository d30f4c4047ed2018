package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/cslcapital/portsync/internal/metrics"
	"github.com/cslcapital/portsync/internal/runner"
	"github.com/cslcapital/portsync/pkg/session"
)

var daemonImmediate bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run extraction passes on a schedule",
	Long: `Run the pipeline on the configured cron schedule until interrupted.
When a metrics address is configured, Prometheus metrics are served on
/metrics. The session bundle file is watched, so a bundle captured on
another machine is picked up without a restart.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonImmediate, "immediate", false, "run one pass immediately on startup")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Zerolog().With().Str("component", "daemon").Logger()
	m := metrics.New()

	r, err := runner.New(cfg, log.Zerolog(), m)
	if err != nil {
		return err
	}
	defer r.Close()

	// Overlapping passes would fight over the browser; a pass that
	// outlives its slot just swallows the next tick.
	var running sync.Mutex
	pass := func() {
		if !running.TryLock() {
			logger.Warn().Msg("previous pass still running, skipping tick")
			return
		}
		defer running.Unlock()
		if _, err := r.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled pass failed")
		}
	}

	// The reload is advisory: every pass re-reads the session file before
	// authenticating, so the fresh bundle is picked up on the next tick
	// without any handoff here.
	watcher, err := session.NewWatcher(session.NewFileStore(cfg.Dashboard.SessionFile), func(s *session.Session) {
		logger.Info().Time("issued_at", s.IssuedAt).Msg("new session bundle on disk, next pass will use it")
	})
	if err != nil {
		logger.Warn().Err(err).Msg("session watcher unavailable")
	} else if err := watcher.Start(); err != nil {
		logger.Warn().Err(err).Msg("session watcher failed to start")
	} else {
		defer watcher.Stop()
	}

	var srv *http.Server
	if addr := cfg.Daemon.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info().Str("addr", addr).Msg("metrics listener started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Daemon.Schedule, pass); err != nil {
		return err
	}
	c.Start()
	logger.Info().Str("schedule", cfg.Daemon.Schedule).Msg("daemon started")

	if daemonImmediate {
		go pass()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	cronCtx := c.Stop()
	<-cronCtx.Done()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return nil
}
