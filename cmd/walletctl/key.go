package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/better-wallet/marketplace/internal/keystore"
)

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the encrypted signing key",
	}

	var force bool

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a key and store it encrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			return saveKey(cmd, key, force)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <hex-private-key>",
		Short: "Encrypt and store an existing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keystore.ParseHexKey(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return saveKey(cmd, key, force)
		},
	}

	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Print the stored key's address",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
			return nil
		},
	}

	for _, c := range []*cobra.Command{newCmd, importCmd} {
		c.Flags().BoolVar(&force, "force", false, "Overwrite an existing key file")
	}
	keyCmd.AddCommand(newCmd, importCmd, addressCmd)
	return keyCmd
}

func saveKey(cmd *cobra.Command, key *ecdsa.PrivateKey, force bool) error {
	if !force {
		if _, err := os.Stat(cfg.KeyFile); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfg.KeyFile)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	kms, err := keystore.NewKMSProvider(cmd.Context(), &cfg.KMS)
	if err != nil {
		return err
	}

	kf, err := keystore.Save(cmd.Context(), kms, key, cfg.KeyFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (sealed with %s, saved to %s)\n", kf.Address, kf.Provider, cfg.KeyFile)
	return nil
}

func loadKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	kms, err := keystore.NewKMSProvider(ctx, &cfg.KMS)
	if err != nil {
		return nil, err
	}
	return keystore.Load(ctx, kms, cfg.KeyFile)
}
