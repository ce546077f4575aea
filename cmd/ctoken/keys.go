package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"ctoken/internal/signer"
)

var keygenForce bool

var keygenCmd = &cobra.Command{
	Use:   "keygen <name>",
	Short: "Generates an Ed448 key under keysDir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cur.keyPath(args[0])
		if _, err := os.Stat(path); err == nil && !keygenForce {
			return errors.Errorf("%s exists, use --force to replace it", path)
		}
		k, err := signer.NewEd448()
		if err != nil {
			return err
		}
		if err := signer.SaveEd448(path, k); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\nFile: %s\n", k.Address(), path)
		return nil
	},
}

var airdropTo string

var airdropCmd = &cobra.Command{
	Use:   "airdrop <lamports>",
	Short: "Funds the owner, or --to, with lamports on a local ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lamports, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || lamports == 0 {
			return errors.Errorf("invalid lamports %q", args[0])
		}
		target := airdropTo
		if target == "" {
			target = ownerKey
		}
		addr, err := cur.resolve(target)
		if err != nil {
			return err
		}
		receipt, err := cur.client.Airdrop(cmd.Context(), addr, lamports)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Funded %s with %d lamports (tx %s)\n", addr, lamports, receipt.ID)
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "replace an existing key")
	airdropCmd.Flags().StringVar(&airdropTo, "to", "", "address or key name to fund")
	rootCmd.AddCommand(keygenCmd, airdropCmd)
}
