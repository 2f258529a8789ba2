package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"dualinbox/internal/app"
	"dualinbox/internal/config"
	"dualinbox/internal/domain"
)

var (
	configFile string
	address    string
	logLevel   string
	passphrase string

	cfg *config.Config
)

// Execute runs the dualinbox CLI.
func Execute() error {
	root := &cobra.Command{
		Use:   "dualinbox",
		Short: "Wallet-addressed messaging across the DM and group protocols",
		Long: `dualinbox drives a wallet-addressed inbox across two messaging protocols:
a 1:1 DM protocol with per-conversation consent, and a group protocol with
thread-hash paginated history. It persists protocol keys locally, registers
conversation topics with a backend index, and moves encrypted attachments
through content-addressed blob storage.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configFile != "" {
				cfg, err = config.LoadFile(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config file '%v': %w", configFile, err)
				}
			} else {
				cfg = config.Default()
			}
			if logLevel != "" {
				cfg.Logging.Level = strings.ToUpper(logLevel)
				return cfg.FixupAndValidate()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "f", "", "path to the TOML configuration file")
	root.PersistentFlags().StringVar(&address, "address", "", "wallet address to act as (default: the local wallet)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override Logging.Level (ERROR, WARNING, NOTICE, INFO, DEBUG)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the local wallet")

	root.AddCommand(initCmd(), fingerprintCmd(), setupCmd(), prefsCmd(), demoCmd())
	return fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(versioninfo.Short()),
	)
}

func wire() (*app.Wire, error) {
	return app.NewWire(app.Config{Config: cfg})
}

// selectedAddress returns --address, or the address of the local wallet
// when the flag is empty.
func selectedAddress(w *app.Wire) (domain.Address, error) {
	if address != "" {
		return domain.ParseAddress(address)
	}
	if passphrase == "" {
		return "", fmt.Errorf("--address or a wallet passphrase (-p) is required")
	}
	wallet, err := w.Wallets.LoadWallet(passphrase)
	if err != nil {
		return "", err
	}
	return wallet.Address(), nil
}
