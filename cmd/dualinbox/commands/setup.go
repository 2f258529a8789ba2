package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"dualinbox/internal/domain"
	"dualinbox/internal/services/setup"
)

// setup: register --address with the DM and group protocols.
func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Register an address with both protocols",
		Long: `Setup creates the DM inbox and the group protocol identity of an address,
storing both keys in the local store. An address whose keys are already
stored completes immediately without asking the wallet to sign. A wallet
passphrase (-p) is needed only for the first run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wire()
			if err != nil {
				return err
			}
			defer w.Close()

			addr, err := selectedAddress(w)
			if err != nil {
				return err
			}
			var signer domain.Signer
			if passphrase != "" {
				wallet, err := w.Wallets.LoadWallet(passphrase)
				if err != nil {
					return err
				}
				signer = wallet
			}

			out := cmd.OutOrStdout()
			state, err := w.Setup.Start(addr, signer)
			fmt.Fprintf(out, "%s: %s\n", addr, state)
			for err == nil && state != setup.Complete {
				state, err = w.Setup.Step(cmd.Context())
				fmt.Fprintf(out, "%s: %s\n", addr, state)
			}
			if err != nil {
				return err
			}
			for _, s := range w.Setup.Subscriptions() {
				fmt.Fprintf(out, "subscribed: %s %s\n", s.Channel, s.Name)
			}
			return nil
		},
	}
}
