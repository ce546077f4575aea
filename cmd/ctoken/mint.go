package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctoken/internal/token"
)

var (
	mintDecimals    uint8
	mintAutoApprove bool
	mintKeyName     string
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Creates mints and issues tokens",
}

var mintCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a mint whose authority is the owner",
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
		payer, err := cur.payer()
		if err != nil {
			return err
		}
		mintKey, err := cur.key(mintKeyName)
		if err != nil {
			return err
		}
		receipt, err := svc.CreateMint(cmd.Context(), payer, mintKey, owner.Address(), mintDecimals, mintAutoApprove)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Mint: %s\nDecimals: %d\nTransaction: %s\n", mintKey.Address(), mintDecimals, receipt.ID)
		return nil
	},
}

var mintToCmd = &cobra.Command{
	Use:   "to <mint> <recipient> <amount>",
	Short: "Mints tokens to the public balance of recipient's account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := cur.service()
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
		authority, err := cur.owner()
		if err != nil {
			return err
		}
		payer, err := cur.payer()
		if err != nil {
			return err
		}
		receipt, err := svc.MintTo(cmd.Context(), payer, authority, mint, recipient, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Minted %s to %s (tx %s)\n", token.FromBaseUnits(amount, decimals), recipient, receipt.ID)
		return nil
	},
}

func init() {
	mintCreateCmd.Flags().Uint8Var(&mintDecimals, "decimals", 2, "decimal places of the mint")
	mintCreateCmd.Flags().BoolVar(&mintAutoApprove, "auto-approve", true, "approve confidential accounts on configuration")
	mintCreateCmd.Flags().StringVar(&mintKeyName, "mint-key", "mint", "key whose address becomes the mint")
	mintCmd.AddCommand(mintCreateCmd, mintToCmd)
	rootCmd.AddCommand(mintCmd)
}
