package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/restitution-engine/core"
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerBalanceCmd)

	ledgerBalanceCmd.Flags().String("user", "", "User ID")
	ledgerBalanceCmd.Flags().Int("entries", 10, "Number of recent entries to show")
	ledgerBalanceCmd.MarkFlagRequired("user")
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the credit ledger",
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a user's valid balance and recent entries",
	RunE:  runLedgerBalance,
}

func runLedgerBalance(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("entries")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	user, err := store.GetUser(ctx, core.UserID(userID))
	if err != nil {
		return err
	}
	now := time.Now()
	balance, err := core.NewLedger(store).ValidBalance(ctx, user.ID, now)
	if err != nil {
		return err
	}
	entries, err := store.Entries(ctx, user.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:     %s (%s)\n", user.ID, user.Email)
	fmt.Fprintf(out, "Valid:    %d\n", balance)
	fmt.Fprintf(out, "Cached:   %d\n\n", user.Credits)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tKIND\tAMOUNT\tREFERENCE\tEXPIRES")
	for i := len(entries) - 1; i >= 0 && len(entries)-i <= limit; i-- {
		e := entries[i]
		expires := "-"
		if e.ExpiresAt != nil {
			expires = e.ExpiresAt.Format(time.DateOnly)
			if !e.ActiveAt(now) {
				expires += " (expired)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%+d\t%s\t%s\n",
			e.CreatedAt.Format(time.DateTime), e.Kind, e.Amount, e.ReferenceID, expires)
	}
	return w.Flush()
}
