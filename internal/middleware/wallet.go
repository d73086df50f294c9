package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/better-wallet/marketplace/internal/authsig"
	"github.com/better-wallet/marketplace/internal/logger"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

// WalletAddressHeader names the header a connected client sends its active
// account in.
const WalletAddressHeader = "X-Wallet-Address"

// WalletSignature is the body VerifyWalletSignature expects.
type WalletSignature struct {
	WalletAddress string `json:"walletAddress"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
}

// AttachWalletAddress stores the lower-cased X-Wallet-Address header, when
// present, in the request context.
func AttachWalletAddress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := strings.TrimSpace(r.Header.Get(WalletAddressHeader))
		if address != "" {
			ctx := context.WithValue(r.Context(), WalletAddressKey, strings.ToLower(address))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// GetWalletAddress returns the address stored by AttachWalletAddress.
func GetWalletAddress(ctx context.Context) (string, bool) {
	address, ok := ctx.Value(WalletAddressKey).(string)
	return address, ok && address != ""
}

// VerifyWalletSignature checks that the body's signature is an EIP-191
// personal signature of message by walletAddress. The body is restored for
// the next handler, so LimitBody should run first to bound its size.
func VerifyWalletSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			writeError(w, missingSignatureParams())
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest, "Failed to read request body", err.Error(), http.StatusBadRequest))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var req WalletSignature
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest, "Invalid JSON", err.Error(), http.StatusBadRequest))
			return
		}
		if req.WalletAddress == "" || req.Message == "" || req.Signature == "" {
			writeError(w, missingSignatureParams())
			return
		}

		if err := authsig.VerifyPersonal(req.WalletAddress, []byte(req.Message), req.Signature); err != nil {
			logger.Warn(r.Context(), "wallet signature rejected", "wallet_address", strings.ToLower(req.WalletAddress), "error", err)
			writeError(w, apperrors.InvalidSignature(err.Error()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func missingSignatureParams() *apperrors.AppError {
	return apperrors.NewWithDetail(
		apperrors.ErrCodeBadRequest,
		"Signature verification failed",
		"walletAddress, message and signature are required",
		http.StatusBadRequest,
	)
}
