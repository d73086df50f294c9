// Command walletctl drives the wallet-connection core from a terminal: it
// manages an encrypted signing key, connects it to configured chains and
// signs in to the marketplace backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/better-wallet/marketplace/internal/config"
	"github.com/better-wallet/marketplace/internal/logger"
)

// global flags
var (
	keyFile   string
	chainID   int64
	assumeYes bool
)

var cfg *config.WalletConfig

var rootCmd = &cobra.Command{
	Use:           "walletctl",
	Short:         "Marketplace wallet command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(); err != nil {
			return err
		}

		loaded, err := config.LoadWallet()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("key-file") {
			loaded.KeyFile = keyFile
		}
		if cmd.Flags().Changed("chain-id") {
			loaded.ChainID = chainID
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&keyFile, "key-file", "wallet.json", "Encrypted key file (overrides WALLET_KEY_FILE)")
	rootCmd.PersistentFlags().Int64Var(&chainID, "chain-id", 1, "Chain to start on (overrides WALLET_CHAIN_ID)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Approve every wallet prompt without asking")

	rootCmd.AddCommand(
		newKeyCmd(),
		newConnectCmd(),
		newBalanceCmd(),
		newSignCmd(),
		newSendCmd(),
		newSwitchCmd(),
		newLoginCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
