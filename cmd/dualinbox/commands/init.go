package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate the development wallet and store it securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			w, err := wire()
			if err != nil {
				return err
			}
			defer w.Close()

			wallet, fp, err := w.Wallets.GenerateWallet(passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet created.\nAddress: %s\nFingerprint: %s\n", wallet.Address(), fp)
			return nil
		},
	}
}
