package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"ctoken/internal/confidential"
	"ctoken/internal/token"
)

var maxPending uint64

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manages confidential token accounts",
}

var accountProvisionCmd = &cobra.Command{
	Use:   "provision <mint>",
	Short: "Creates and configures the owner's confidential account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cur.service()
		if err != nil {
			return err
		}
		mint, err := cur.resolve(args[0])
		if err != nil {
			return err
		}
		owner, err := cur.owner()
		if err != nil {
			return err
		}
		payer, err := cur.payer()
		if err != nil {
			return err
		}
		if maxPending == 0 {
			maxPending = cur.cfg.MaxPendingCounter
		}
		acct, err := svc.Provision(cmd.Context(), payer, mint, owner, maxPending)
		switch {
		case errors.Is(err, confidential.ErrAlreadyProvisioned):
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s is already provisioned\n", acct.Address)
			return nil
		case err != nil:
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account: %s\nElGamal key: %s\nApproved: %t\n",
			acct.Address, acct.Keypair.Public, acct.Approved)
		return nil
	},
}

var accountApproveCmd = &cobra.Command{
	Use:   "approve <mint> <account-owner>",
	Short: "Approves an account as the mint authority",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cur.service()
		if err != nil {
			return err
		}
		mint, err := cur.resolve(args[0])
		if err != nil {
			return err
		}
		holder, err := cur.resolve(args[1])
		if err != nil {
			return err
		}
		authority, err := cur.owner()
		if err != nil {
			return err
		}
		payer, err := cur.payer()
		if err != nil {
			return err
		}
		receipt, err := svc.ApproveAccount(cmd.Context(), payer, authority, mint, holder)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Approved %s (tx %s)\n", confidential.AccountAddress(holder, mint), receipt.ID)
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show <mint>",
	Short: "Decrypts and prints the owner's balances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cur.service()
		if err != nil {
			return err
		}
		mint, err := cur.resolve(args[0])
		if err != nil {
			return err
		}
		decimals, err := cur.decimals(cmd.Context(), mint)
		if err != nil {
			return err
		}
		owner, err := cur.owner()
		if err != nil {
			return err
		}
		acct, err := svc.Account(cmd.Context(), owner, mint)
		if err != nil {
			return err
		}
		bal, err := svc.Balance(cmd.Context(), owner, mint)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Account:   %s\n", acct.Address)
		fmt.Fprintf(w, "Approved:  %t\n", acct.Approved)
		fmt.Fprintf(w, "Public:    %s\n", token.FromBaseUnits(bal.Public, decimals))
		fmt.Fprintf(w, "Available: %s\n", token.FromBaseUnits(bal.Available, decimals))
		fmt.Fprintf(w, "Pending:   %s (%d of %d credits)\n", token.FromBaseUnits(bal.Pending, decimals),
			bal.PendingCounter, acct.MaxPendingCounter)
		return nil
	},
}

func init() {
	accountProvisionCmd.Flags().Uint64Var(&maxPending, "max-pending", 0, "pending credits allowed between applies (default from config)")
	accountCmd.AddCommand(accountProvisionCmd, accountApproveCmd, accountShowCmd)
	rootCmd.AddCommand(accountCmd)
}
