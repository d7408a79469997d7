package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/restitution-engine/indexation"
	"github.com/warp/restitution-engine/rates"
)

func init() {
	rootCmd.AddCommand(ratesCmd)
	ratesCmd.AddCommand(ratesImportCmd)

	ratesImportCmd.Flags().String("index", "", "Rate index: ipca or selic")
	ratesImportCmd.Flags().StringP("file", "f", "", "CSV file with month,rate rows")
	ratesImportCmd.MarkFlagRequired("index")
	ratesImportCmd.MarkFlagRequired("file")
}

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Manage monthly IPCA and SELIC rates",
}

var ratesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert monthly rates from a CSV file",
	Long: `Reads "YYYY-MM,rate" rows and upserts them for one index. Rates are
monthly fractions (0.0116) or percentages with a % suffix (1.16%).
A header row and lines starting with # are skipped.`,
	RunE: runRatesImport,
}

func runRatesImport(cmd *cobra.Command, _ []string) error {
	indexFlag, _ := cmd.Flags().GetString("index")
	path, _ := cmd.Flags().GetString("file")

	index, err := indexation.ParseIndex(indexFlag)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rates file: %w", err)
	}
	defer f.Close()

	table, err := rates.ParseCSV(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UpsertRates(cmd.Context(), index, table); err != nil {
		return fmt.Errorf("store rates: %w", err)
	}

	logger.Info("rates imported", "index", index, "months", len(table), "file", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s months\n", len(table), index)
	return nil
}
