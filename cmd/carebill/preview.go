package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/artpar/carebill/app"
	"github.com/artpar/carebill/domain/billing"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show bills falling due in the next days",
	Long: `Project each active client's next billing date and list those due
within the window. Nothing is written.

Examples:
  carebill preview
  carebill preview --family patient_admission --days 7`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

var (
	previewFamily string
	previewDays   int
	previewJSON   bool
)

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVar(&previewFamily, "family", "", "preview a single family (default: all)")
	previewCmd.Flags().IntVar(&previewDays, "days", 0, "window in days (default: forecast.days)")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "print forecasts as JSON")
}

func runPreview(cmd *cobra.Command, args []string) error {
	if previewDays < 0 {
		return fmt.Errorf("--days must not be negative")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	families := a.Registry.Families()
	if previewFamily != "" {
		engine, ok := a.Registry.Engine(previewFamily)
		if !ok {
			return fmt.Errorf("unknown family %q", previewFamily)
		}
		families = []app.Family{engine.Family()}
	}

	ctx := context.Background()
	forecasts := make([]app.Forecast, 0, len(families))
	for _, fam := range families {
		engine, _ := a.Registry.Engine(fam.Name)
		f, err := engine.Preview(ctx, previewDays)
		if err != nil {
			return fmt.Errorf("preview %s: %w", fam.Name, err)
		}
		forecasts = append(forecasts, f)
	}

	out := cmd.OutOrStdout()
	if previewJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(forecasts)
	}

	for _, f := range forecasts {
		fmt.Fprintf(out, "%s: %d bill(s) in %d days, total %s\n", f.Family, len(f.Items), f.WindowDays, f.Total.StringFixed(2))
		if len(f.Items) == 0 {
			continue
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  CLIENT\tDUE\tIN DAYS\tAMOUNT")
		for _, it := range f.Items {
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", it.Client, billing.FormatDate(it.NextBillingDate), it.DaysUntil, it.Amount.StringFixed(2))
		}
		w.Flush()
	}
	return nil
}
