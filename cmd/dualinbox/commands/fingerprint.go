package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print wallet address and fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			w, err := wire()
			if err != nil {
				return err
			}
			defer w.Close()

			wallet, err := w.Wallets.LoadWallet(passphrase)
			if err != nil {
				return err
			}
			fp, err := w.Wallets.Fingerprint(passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\nCAIP-10: %s\nFingerprint: %s\n", wallet.Address(), wallet.Address().CAIP10(), fp)
			return nil
		},
	}
}
