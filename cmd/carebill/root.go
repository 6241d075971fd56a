package main

import (
	"fmt"
	"os"
	"time"

	"github.com/artpar/carebill/bootstrap"
	"github.com/artpar/carebill/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "carebill",
	Short: "Recurring billing for home-care and patient-admission clients",
	Long: `carebill generates monthly invoices for care clients on their
service anniversary, once per client per day.

Quick start:
  carebill serve     # HTTP API plus the daily scheduled run
  carebill run       # Bill every client due today, then exit

Inspection:
  carebill preview   # Upcoming bills in the next N days
  carebill history   # Past invoices of one client
  carebill validate  # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "carebill.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr while running one-shot commands")
}

// loadConfig reads cfgFile, falling back to CAREBILL_* environment variables.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// openApp builds the application for a one-shot command. Logs are discarded
// unless --verbose is set.
func openApp() (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := zerolog.Nop()
	if verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	a, err := bootstrap.New(cfg, bootstrap.Options{Version: version, Logger: &logger})
	if err != nil {
		return nil, fmt.Errorf("error initializing: %w", err)
	}
	return a, nil
}
