package main

import (
	"fmt"
	"os"

	"github.com/artpar/carebill/bootstrap"
	"github.com/artpar/carebill/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billing server and daily scheduler",
	Long: `Start the carebill HTTP server.

The server will:
  - Load configuration from carebill.yaml (or --config)
  - Or load configuration from CAREBILL_* environment variables
  - Open the client and invoice store
  - Run billing for every family daily at schedule.at
  - Serve previews, history and manual runs under /billing

Environment variables (for Docker deployments):
  CAREBILL_STORE_DRIVER          - memory, sqlite or sheets
  CAREBILL_STORE_DSN             - SQLite path (default: carebill.db)
  CAREBILL_SHEETS_SPREADSHEET_ID - Spreadsheet holding the client tabs
  CAREBILL_SERVER_PORT           - Server port (default: 8080)
  CAREBILL_TIMEZONE              - Zone that decides "today"
  CAREBILL_LOG_LEVEL             - Log level: debug, info, warn, error

Examples:
  carebill serve
  carebill serve --config /etc/carebill/config.yaml
  carebill serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload schedule and log level when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var (
		cfg  *config.Config
		opts = bootstrap.Options{Version: version}
	)
	if hasConfigFile && hotReload {
		holder, err := config.NewHolder(cfgFile, bootstrap.SetupLogger(config.LoggingConfig{}))
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		cfg = holder.Get()
		opts.Holder = holder
	} else {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}
	}

	app, err := bootstrap.New(cfg, opts)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
