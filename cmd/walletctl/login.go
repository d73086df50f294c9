package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/better-wallet/marketplace/internal/api"
	"github.com/better-wallet/marketplace/internal/middleware"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

const loginTimeout = 30 * time.Second

// signer signs a login challenge with the connected account.
type signer func(ctx context.Context, message []byte) (string, error)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to the marketplace backend and print the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWallet(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			state := ws.conn.State()
			ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
			defer cancel()

			resp, err := login(ctx, http.DefaultClient, cfg.ServerURL, *state.Account, state.ChainID, ws.conn.SignMessage)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

// login runs the challenge, sign and exchange steps against baseURL.
func login(ctx context.Context, client *http.Client, baseURL, address, chainID string, sign signer) (*api.LoginResponse, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	query := url.Values{"address": {address}}
	if chainID != "" {
		query.Set("chainId", chainID)
	}

	var challenge api.ChallengeResponse
	if err := doJSON(ctx, client, http.MethodGet, baseURL+"/api/users/wallet-challenge?"+query.Encode(), nil, &challenge); err != nil {
		return nil, fmt.Errorf("request challenge: %w", err)
	}

	signature, err := sign(ctx, []byte(challenge.Message))
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}

	body := middleware.WalletSignature{
		WalletAddress: address,
		Message:       challenge.Message,
		Signature:     signature,
	}
	var out api.LoginResponse
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/api/users/wallet-login", body, &out); err != nil {
		return nil, fmt.Errorf("wallet login: %w", err)
	}
	return &out, nil
}

// doJSON sends body as JSON and decodes a 2xx response into out. Error
// responses are decoded into *apperrors.AppError.
func doJSON(ctx context.Context, client *http.Client, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		appErr := &apperrors.AppError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(appErr); err != nil || appErr.Code == "" {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return appErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
