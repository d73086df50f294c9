package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/better-wallet/marketplace/internal/connector"
	"github.com/better-wallet/marketplace/internal/eth"
	"github.com/better-wallet/marketplace/internal/provider"
	"github.com/better-wallet/marketplace/internal/wallet"
)

// walletSession is a connected wallet for the lifetime of one command.
type walletSession struct {
	svc     *wallet.Service
	conn    *connector.Connector
	clients []*eth.Client
}

// openWallet unlocks the key, dials every configured chain and connects.
// The configured chain is registered first so it starts active.
func openWallet(cmd *cobra.Command) (*walletSession, error) {
	ctx := cmd.Context()
	if len(cfg.RPCURLs) == 0 {
		return nil, fmt.Errorf("ETH_RPC_URLS is required")
	}

	key, err := loadKey(ctx)
	if err != nil {
		return nil, err
	}

	ws := &walletSession{}
	opts := []provider.LocalOption{
		provider.WithKey(key),
		provider.WithApprover(approver(cmd.InOrStdin(), cmd.ErrOrStderr())),
	}

	for _, id := range chainOrder(cfg.ChainIDs(), cfg.ChainID) {
		client, err := eth.Dial(ctx, cfg.RPCURLs[id])
		if err != nil {
			ws.Close()
			return nil, fmt.Errorf("chain %d: %w", id, err)
		}
		ws.clients = append(ws.clients, client)

		if got := client.ChainID().Int64(); got != id {
			ws.Close()
			return nil, fmt.Errorf("ETH_RPC_URLS entry for chain %d serves chain %d", id, got)
		}
		opts = append(opts, provider.WithChain(client))
	}

	ws.svc = wallet.NewService(provider.NewLocalProvider(opts...), wallet.WithLogger(slog.Default()))
	ws.conn = connector.New(ws.svc, connector.WithLogger(slog.Default()))
	ws.conn.Start(ctx)

	if _, err := ws.conn.Connect(ctx); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

// Close releases the connector, the service and every node connection.
func (ws *walletSession) Close() {
	if ws.conn != nil {
		ws.conn.Close()
	}
	if ws.svc != nil {
		ws.svc.Close()
	}
	for _, c := range ws.clients {
		c.Close()
	}
}

// chainOrder returns ids with first moved to the front.
func chainOrder(ids []int64, first int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == first {
			out = append(out, id)
		}
	}
	for _, id := range ids {
		if id != first {
			out = append(out, id)
		}
	}
	return out
}

// approver prompts on out and reads y/N answers from in, unless --yes was given.
func approver(in io.Reader, out io.Writer) provider.Approver {
	if assumeYes {
		return provider.AutoApprove
	}
	return promptApprover(in, out)
}

func promptApprover(in io.Reader, out io.Writer) provider.Approver {
	var mu sync.Mutex
	reader := bufio.NewReader(in)

	return func(_ context.Context, method string) bool {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintf(out, "Approve %s? [y/N] ", method)
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet and print its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()
			return printJSON(cmd.OutOrStdout(), ws.conn.State())
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the connected account's native balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			state := ws.conn.State()
			if state.ErrorCode != "" {
				return fmt.Errorf("%s", state.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", state.Balance, state.NetworkName)
			return nil
		},
	}
}

func newSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign a message with personal_sign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			sig, err := ws.conn.SignMessage(cmd.Context(), []byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "send <to> <value>",
		Short: "Send native currency; value is in whole units (e.g. 0.1)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			hash, err := ws.conn.SendTransaction(cmd.Context(), args[0], args[1], data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Hex calldata")
	return cmd
}

func newSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <chain-id>",
		Short: "Switch to another configured chain and print the new state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.conn.SwitchNetwork(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ws.conn.State())
		},
	}
}
