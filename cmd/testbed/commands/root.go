// Package commands implements the testbed command line
package commands

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/celestiaorg/testbed/internal/constants"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/signal"
)

// flag names
const (
	flagSettings      = "settings"
	flagDB            = "db"
	flagPollInterval  = "poll-interval"
	flagMaxWait       = "max-wait"
	flagServerAddress = "server-address"
	flagNoColor       = "no-color"
)

const (
	defaultSettingsFile = "settings.yaml"
	// forceShutdownDelay is how long an interrupted command may take to unwind
	forceShutdownDelay = 30 * time.Second
)

type rootOptions struct {
	settingsFile  string
	dbPath        string
	pollInterval  time.Duration
	maxWait       time.Duration
	serverAddress string
	noColor       bool
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "testbed",
		Short: "Provision and drive a region-spread fleet of cloud instances",
		Long: `testbed deploys, starts, stops and destroys a fleet of cloud instances spread across
regions, waiting until the instances are reachable over SSH before returning.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.InitializeAndConfigure()
			applyEnv(cmd, opts)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.settingsFile, flagSettings, defaultSettingsFile, "Settings file (env: TESTBED_SETTINGS)")
	flags.StringVar(&opts.dbPath, flagDB, "", "SQLite file recording the operation history, empty disables it (env: TESTBED_DB)")
	flags.DurationVar(&opts.pollInterval, flagPollInterval, 0, "Delay between two readiness checks (default 5s)")
	flags.DurationVar(&opts.maxWait, flagMaxWait, 0, "Give up waiting for the fleet after this long, 0 waits forever")
	flags.StringVar(&opts.serverAddress, flagServerAddress, "", "Drive a running testbed server instead of the provider (env: TESTBED_SERVER_ADDRESS)")
	flags.BoolVar(&opts.noColor, flagNoColor, false, "Disable colored status output")

	cmd.AddCommand(
		newDeployCmd(opts),
		newDestroyCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newRefreshCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
		newKeygenCmd(),
	)
	return cmd
}

// applyEnv fills the flags left unset from the environment, after .env files are loaded
func applyEnv(cmd *cobra.Command, opts *rootOptions) {
	fromEnv := func(flag, env string, target *string) {
		if cmd.Flags().Changed(flag) {
			return
		}
		if value := os.Getenv(env); value != "" {
			*target = value
		}
	}
	fromEnv(flagSettings, constants.EnvSettingsFile, &opts.settingsFile)
	fromEnv(flagDB, constants.EnvDatabase, &opts.dbPath)
	fromEnv(flagServerAddress, constants.EnvServerAddress, &opts.serverAddress)
}

// Execute loads .env files and runs the command tree until completion or interrupt
func Execute() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	ctx, cancel := signal.WatchInterrupt(context.Background(), forceShutdownDelay)
	defer cancel()
	return NewRootCmd().ExecuteContext(ctx)
}

// withBackend opens the backend for the duration of fn
func withBackend(cmd *cobra.Command, opts *rootOptions, fn func(Backend) error) error {
	backend, err := newBackend(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.Warnf("Failed to close backend: %v", cerr)
		}
	}()
	return fn(backend)
}
