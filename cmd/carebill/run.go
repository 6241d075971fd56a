package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/artpar/carebill/app"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bill every client due today and exit",
	Long: `Run the daily billing pass once.

Clients already invoiced today are skipped, so running this twice on the
same day produces no extra invoices.

Examples:
  carebill run
  carebill run --family home_care
  carebill run --json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runFamily string
	runJSON   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFamily, "family", "", "run a single family (default: all)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print run summaries as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var sums []app.RunSummary
	if runFamily != "" {
		engine, ok := a.Registry.Engine(runFamily)
		if !ok {
			return fmt.Errorf("unknown family %q", runFamily)
		}
		sums = append(sums, engine.RunDaily(ctx, app.TriggerManual))
	} else {
		sums = a.Registry.RunAll(ctx, app.TriggerManual)
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sums); err != nil {
			return err
		}
	} else {
		printSummaries(out, sums)
	}

	failed := 0
	for _, s := range sums {
		failed += s.ErrorCount
	}
	if failed > 0 {
		return fmt.Errorf("%d client(s) failed to bill", failed)
	}
	return nil
}

func printSummaries(out io.Writer, sums []app.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tACTIVE\tBILLED\tSKIPPED\tERRORS\tRUN")
	for _, s := range sums {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Family, s.TotalActiveClients, s.BilledCount, s.SkippedCount, s.ErrorCount, s.RunID)
	}
	w.Flush()

	for _, s := range sums {
		for _, b := range s.BilledClients {
			fmt.Fprintf(out, "  %s %s %s %s\n", checkMark, b.Reference, b.Client, b.Amount.StringFixed(2))
		}
		for _, e := range s.Errors {
			fmt.Fprintf(out, "  %s %s: %s\n", crossMark, e.Client, e.Message)
		}
	}
}
