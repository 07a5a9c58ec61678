package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	configPath   string
	dataDir      string
	logLevel     string
	logJSON      bool
	outputFormat string
)

// cfg is loaded once per invocation by the root pre-run hook
var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - manage AdGuard Home filtering rules across appliances",
	Long: `Burrow keeps the user filtering rules of one or more AdGuard Home
appliances in a local cache, serves them when an appliance is unreachable
and pushes rule edits back to the appliance.

Run "burrow serve" for the HTTP API and background sync, or use the other
commands to work on the local database directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("data-dir") {
			loaded.DataDir = dataDir
		}
		if flags.Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if flags.Changed("log-json") {
			loaded.Log.JSON = logJSON
		}
		switch outputFormat {
		case "json", "yaml":
		default:
			return fmt.Errorf("--output must be json or yaml, got %q", outputFormat)
		}

		// stdout carries command output; logs go to stderr
		logOpts := loaded.Log.Options()
		logOpts.Output = os.Stderr
		log.Init(logOpts)
		metrics.SetVersion(Version)

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", os.Getenv("BURROW_CONFIG"), "Path to YAML configuration file")
	flags.StringVar(&dataDir, "data-dir", "", "Data directory (overrides data_dir)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	flags.StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(opsCmd)
}
