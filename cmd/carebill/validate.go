package main

import (
	"fmt"
	"os"

	"github.com/artpar/carebill/adapters/sqlite"
	"github.com/artpar/carebill/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the carebill configuration file.

Checks:
  - YAML syntax is valid
  - Store, families, schedule and time zone are consistent
  - Database is writable (optional, sqlite only)

Examples:
  carebill validate
  carebill validate --config /etc/carebill/config.yaml`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the sqlite database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Store: %s\n", checkMark, cfg.Store.Driver)
	for _, f := range cfg.Families {
		fmt.Fprintf(out, "  %s Family %s (%s, prefix %s)\n", checkMark, f.Name, f.ServiceTag, f.Prefix)
	}
	schedule := "disabled"
	if cfg.Schedule.Enabled {
		schedule = cfg.Schedule.At + " " + cfg.Schedule.Timezone
	}
	fmt.Fprintf(out, "  %s Daily run: %s\n", checkMark, schedule)
	fmt.Fprintf(out, "  %s Lock: %s, events: %s\n", checkMark, cfg.Lock.Driver, cfg.Events.Driver)

	if validateCheckDatabase && cfg.Store.Driver == "sqlite" {
		if err := checkDatabaseWritable(cfg.Store.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
