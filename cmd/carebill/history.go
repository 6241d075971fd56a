package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/artpar/carebill/domain/billing"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <client-name>",
	Short: "List a client's invoices, newest first",
	Example: `  carebill history "Asha Rao"
  carebill history "Asha Rao" --family patient_admission`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var historyFamily string

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyFamily, "family", "home_care", "billing family")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	engine, ok := a.Registry.Engine(historyFamily)
	if !ok {
		return fmt.Errorf("unknown family %q", historyFamily)
	}

	entries := engine.History(context.Background(), args[0])
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No invoices for %s.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tDATE\tAMOUNT\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Reference, billing.FormatDate(e.Date), e.Amount.StringFixed(2), e.Status)
	}
	return w.Flush()
}
