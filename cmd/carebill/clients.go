package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/artpar/carebill/adapters/sqlite"
	"github.com/artpar/carebill/config"
	"github.com/artpar/carebill/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage clients in the SQLite store",
	Long: `Manage clients when store.driver is sqlite.

Sheets-backed deployments edit clients in the spreadsheet itself.

Examples:
  carebill clients list --family home_care
  carebill clients add "Asha Rao" --start 31/01/2025 --rate 10000
  carebill clients add "Asha Rao" --inactive --end 30/06/2025`,
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the clients of a family",
	Args:  cobra.NoArgs,
	RunE:  runClientsList,
}

var clientsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace a client",
	Args:  cobra.ExactArgs(1),
	RunE:  runClientsAdd,
}

var (
	clientFamily   string
	clientStart    string
	clientEnd      string
	clientRate     string
	clientExtra    string
	clientDiscount string
	clientInactive bool
)

func init() {
	rootCmd.AddCommand(clientsCmd)

	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsAddCmd)

	clientsCmd.PersistentFlags().StringVar(&clientFamily, "family", "home_care", "billing family")

	clientsAddCmd.Flags().StringVar(&clientStart, "start", "", "service start or admission date, DD/MM/YYYY or YYYY-MM-DD (required)")
	clientsAddCmd.Flags().StringVar(&clientEnd, "end", "", "service end or discharge date, DD/MM/YYYY or YYYY-MM-DD")
	clientsAddCmd.Flags().StringVar(&clientRate, "rate", "0", "monthly rate")
	clientsAddCmd.Flags().StringVar(&clientExtra, "extra", "0", "monthly extra charges")
	clientsAddCmd.Flags().StringVar(&clientDiscount, "discount", "0", "monthly discount")
	clientsAddCmd.Flags().BoolVar(&clientInactive, "inactive", false, "mark the client inactive")
	clientsAddCmd.MarkFlagRequired("start")
}

func openClientStore() (*sqlite.DB, *sqlite.ClientStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Driver != "sqlite" {
		return nil, nil, fmt.Errorf("clients commands need store.driver sqlite (have %s)", cfg.Store.Driver)
	}
	if !hasFamily(cfg, clientFamily) {
		return nil, nil, fmt.Errorf("unknown family %q", clientFamily)
	}

	db, err := sqlite.Open(cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, sqlite.NewClientStore(db, clientFamily), nil
}

func hasFamily(cfg *config.Config, name string) bool {
	for _, f := range cfg.Families {
		if f.Name == name {
			return true
		}
	}
	return false
}

func runClientsList(cmd *cobra.Command, args []string) error {
	db, store, err := openClientStore()
	if err != nil {
		return err
	}
	defer db.Close()

	clients, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}
	if len(clients) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No clients found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTART\tACTIVE\tEND\tLAST BILLED\tMONTHLY")
	for _, c := range clients {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			c.Name, c.AnchorRaw, c.Active, optionalDate(c.StopDate), optionalDate(c.LastBilled), c.Total().StringFixed(2))
	}
	return w.Flush()
}

func runClientsAdd(cmd *cobra.Command, args []string) error {
	anchor, ok := billing.ParseDate(clientStart)
	if !ok {
		return fmt.Errorf("invalid --start %q: want DD/MM/YYYY or YYYY-MM-DD", clientStart)
	}
	c := billing.Client{
		Name:       args[0],
		AnchorRaw:  clientStart,
		AnchorDate: anchor,
		Active:     !clientInactive,
	}
	if clientEnd != "" {
		end, ok := billing.ParseDate(clientEnd)
		if !ok {
			return fmt.Errorf("invalid --end %q: want DD/MM/YYYY or YYYY-MM-DD", clientEnd)
		}
		c.StopDate = &end
	}
	var err error
	if c.Base, err = decimal.NewFromString(clientRate); err != nil {
		return fmt.Errorf("invalid --rate: %w", err)
	}
	if c.Extra, err = decimal.NewFromString(clientExtra); err != nil {
		return fmt.Errorf("invalid --extra: %w", err)
	}
	if c.Discount, err = decimal.NewFromString(clientDiscount); err != nil {
		return fmt.Errorf("invalid --discount: %w", err)
	}

	db, store, err := openClientStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Upsert(context.Background(), c); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s (%s)\n", checkMark, c.Name, clientFamily)
	return nil
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return billing.FormatDate(*t)
}
