// Package cli holds the portsync command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cslcapital/portsync/internal/config"
	"github.com/cslcapital/portsync/internal/logger"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string

	// exitCode lets commands signal a non-zero exit without aborting
	// through an error, so a degraded run is distinguishable from a dead
	// one.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "portsync",
	Short: "Portsync - dashboard portfolio sync",
	Long: `Portsync logs into the servicing dashboard with a real browser,
walks the portfolio listing, and reconciles every deal it finds into the
configured store. Sessions are captured once and reused until the dashboard
stops accepting them.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.portsync/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// setup loads configuration and opens the logger shared by the commands.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open logger: %w", err)
	}
	return cfg, log, nil
}

// GetRootCmd returns the root command for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}
