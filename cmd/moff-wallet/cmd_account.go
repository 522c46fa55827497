package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"moff.io/moff-wallet/internal/database"
)

var (
	accountViewOnly bool
	accountName     string
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountRemoveCmd, accountUseCmd)
	accountAddCmd.Flags().BoolVar(&accountViewOnly, "view-only", false, "watch the address without signing for it")
	accountAddCmd.Flags().StringVar(&accountName, "name", "", "display name")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage wallet accounts",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(context.Background())
		if err != nil {
			return err
		}
		database.Init(&cfg.Database)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		database.Close()
	},
}

var accountAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := database.AccountKindSigner
		if accountViewOnly {
			kind = database.AccountKindViewOnly
		}
		account, err := database.WalletAccount{}.Create(args[0], kind, accountName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", account.Address, account.Kind)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := database.WalletAccount{}.SelectAll()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tKIND\tNAME\tACTIVE")
		for _, a := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", a.Address, a.Kind, a.Name, a.Active)
		}
		return w.Flush()
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return database.WalletAccount{}.Remove(args[0])
	},
}

var accountUseCmd = &cobra.Command{
	Use:   "use <address>",
	Short: "Make an account the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return database.Accounts{}.SetActive(args[0])
	},
}
