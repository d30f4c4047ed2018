package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cslcapital/portsync/internal/metrics"
	"github.com/cslcapital/portsync/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one extraction pass",
	Long: `Run one full pipeline pass: restore or establish a session, walk the
listing, extract every deal card, and reconcile the batch into the store.

Exit codes: 0 clean, 3 degraded (some data was lost or failed to sync),
1 nothing usable was produced.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	r, err := runner.New(cfg, log.Zerolog(), metrics.New())
	if err != nil {
		return err
	}
	defer r.Close()

	summary, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", summary.RunID, err)
	}

	exitCode = summary.Outcome.ExitCode()
	return nil
}
