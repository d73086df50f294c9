package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/marketplace/internal/authsig"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

func TestAttachWalletAddress(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		found  bool
	}{
		{"absent", "", "", false},
		{"lower-cased", "0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001", true},
		{"trimmed", "  0xab  ", "0xab", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			var found bool
			handler := AttachWalletAddress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, found = GetWalletAddress(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			if tt.header != "" {
				req.Header.Set(WalletAddressHeader, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyWalletSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message := "Sign in to the marketplace"
	sig, err := authsig.SignPersonal(key, []byte(message))
	require.NoError(t, err)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherSig, err := authsig.SignPersonal(other, []byte(message))
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "valid signature",
			body:       mustJSON(t, WalletSignature{WalletAddress: address, Message: message, Signature: hexutil.Encode(sig)}),
			wantStatus: http.StatusOK,
		},
		{
			name:       "lower-case address",
			body:       mustJSON(t, WalletSignature{WalletAddress: strings.ToLower(address), Message: message, Signature: hexutil.Encode(sig)}),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing signature",
			body:       mustJSON(t, WalletSignature{WalletAddress: address, Message: message}),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrCodeBadRequest,
		},
		{
			name:       "invalid json",
			body:       "{",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.ErrCodeBadRequest,
		},
		{
			name:       "signed by another key",
			body:       mustJSON(t, WalletSignature{WalletAddress: address, Message: message, Signature: hexutil.Encode(otherSig)}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   apperrors.ErrCodeInvalidSignature,
		},
		{
			name:       "tampered message",
			body:       mustJSON(t, WalletSignature{WalletAddress: address, Message: message + "!", Signature: hexutil.Encode(sig)}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   apperrors.ErrCodeInvalidSignature,
		},
		{
			name:       "malformed signature",
			body:       mustJSON(t, WalletSignature{WalletAddress: address, Message: message, Signature: "0x1234"}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   apperrors.ErrCodeInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var forwarded []byte
			handler := VerifyWalletSignature(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				forwarded, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/users/wallet-login", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.body, string(forwarded), "body is restored for the handler")
				return
			}
			assert.Equal(t, tt.wantCode, decodeAppError(t, rec).Code)
		})
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
