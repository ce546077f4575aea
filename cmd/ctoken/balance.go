package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctoken/internal/token"
)

var depositCmd = &cobra.Command{
	Use:   "deposit <mint> <amount>",
	Short: "Moves tokens from the public balance into the pending balance",
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
		amount, decimals, err := cur.amount(cmd.Context(), mint, args[1])
		if err != nil {
			return err
		}
		owner, err := cur.owner()
		if err != nil {
			return err
		}
		receipt, err := svc.Deposit(cmd.Context(), owner, mint, amount, decimals)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deposited %s (tx %s)\nRun ctoken apply to make it available.\n",
			token.FromBaseUnits(amount, decimals), receipt.ID)
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <mint>",
	Short: "Folds the pending balance into the available balance",
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
		receipt, err := svc.ApplyPending(cmd.Context(), owner, mint)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied pending balance (tx %s)\n", receipt.ID)
		return nil
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <mint> <amount>",
	Short: "Moves tokens from the available balance back to the public balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cur.provingService(cmd.Context())
		if err != nil {
			return err
		}
		mint, err := cur.resolve(args[0])
		if err != nil {
			return err
		}
		amount, decimals, err := cur.amount(cmd.Context(), mint, args[1])
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
		res, err := svc.Withdraw(cmd.Context(), owner, mint, amount, decimals, payer)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Withdrew %s, %s remains available\n",
			token.FromBaseUnits(res.Amount, decimals), token.FromBaseUnits(res.Remaining, decimals))
		printContexts(w, &res.ContextResult)
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <mint> <recipient> <amount>",
	Short: "Sends tokens confidentially to recipient's pending balance",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cur.provingService(cmd.Context())
		if err != nil {
			return err
		}
		mint, err := cur.resolve(args[0])
		if err != nil {
			return err
		}
		recipient, err := cur.resolve(args[1])
		if err != nil {
			return err
		}
		amount, decimals, err := cur.amount(cmd.Context(), mint, args[2])
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
		res, err := svc.Transfer(cmd.Context(), owner, mint, recipient, nil, amount, payer)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Sent %s to %s, %s remains available\n", token.FromBaseUnits(res.Amount, decimals),
			res.Recipient, token.FromBaseUnits(res.Remaining, decimals))
		printContexts(w, &res.ContextResult)
		return nil
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Closes proof contexts left open by interrupted operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := cur.service()
		if err != nil {
			return err
		}
		owner, err := cur.owner()
		if err != nil {
			return err
		}
		report, err := svc.Recover(cmd.Context(), owner)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, a := range report.Closed {
			fmt.Fprintf(w, "Closed: %s\n", a)
		}
		for _, id := range report.Unresolved {
			fmt.Fprintf(w, "Unresolved: operation %s, its transaction may still land\n", id)
		}
		for _, a := range report.Failed {
			fmt.Fprintf(w, "Failed: %s, retry later\n", a)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(depositCmd, applyCmd, withdrawCmd, transferCmd, recoverCmd)
}
