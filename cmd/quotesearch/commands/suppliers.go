package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/supplier"
)

// SuppliersCmd manages the supplier directory
var SuppliersCmd = &cobra.Command{
	Use:   "suppliers",
	Short: "Manage the supplier directory",
	Long: `Manage the suppliers searched by default and the search settings.

A seed file (.toml or .yaml) lists suppliers and optionally the settings:

  [settings]
  results_per_site = 3

  [[suppliers]]
  name = "Loja Exemplo"
  url = "https://loja.ao/"
  market_scale = "local"
  active = true

Suppliers are matched by URL, so importing the same file twice updates
rather than duplicates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var suppliersImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import suppliers and settings from a seed file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuppliersImport,
}

var suppliersLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List suppliers and search settings",
	Args:  cobra.NoArgs,
	RunE:  runSuppliersLs,
}

func init() {
	SuppliersCmd.AddCommand(suppliersImportCmd)
	SuppliersCmd.AddCommand(suppliersLsCmd)
}

func openSupplierStore() (*supplier.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	store := supplier.NewStore(database, logger.Logger.Named("supplier"))
	return store, func() { database.Close() }, nil
}

func runSuppliersImport(cmd *cobra.Command, args []string) error {
	seed, err := supplier.LoadSeed(args[0])
	if err != nil {
		return err
	}
	store, closeDB, err := openSupplierStore()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := store.Import(context.Background(), seed)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Imported %d supplier(s) from %s", n, args[0])
	if seed.Settings != nil {
		pterm.Info.Printfln("Search settings updated (results_per_site=%d)", seed.Settings.ResultsPerSite)
	}
	return nil
}

func runSuppliersLs(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openSupplierStore()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := context.Background()

	suppliers, err := store.AllSuppliers(ctx)
	if err != nil {
		return err
	}
	defaults := store.SystemDefaults(ctx)
	pterm.Info.Printfln("Results per site: %d, price range: %s - %s",
		defaults.ResultsPerSite, formatBound(defaults.PriceMin), formatBound(defaults.PriceMax))

	if len(suppliers) == 0 {
		pterm.Warning.Println("No suppliers; import some with 'quotesearch suppliers import <file>'")
		return nil
	}

	data := [][]string{{"ID", "Name", "URL", "Market", "Active"}}
	for _, s := range suppliers {
		active := pterm.FgGreen.Sprint("yes")
		if !s.Active {
			active = pterm.FgGray.Sprint("no")
		}
		data = append(data, []string{fmt.Sprint(s.ID), s.Name, s.URL, string(s.MarketScale), active})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatBound(v *float64) string {
	if v == nil {
		return "any"
	}
	return fmt.Sprintf("%.2f", *v)
}
