package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

// MaxBodySize is the maximum allowed request body size (1MB)
const MaxBodySize = 1 << 20

// LimitBody enforces MaxBodySize on request bodies and buffers them so that
// both VerifyWalletSignature and the handler can read the body.
// Bodies exceeding the limit return 413 Request Entity Too Large.
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, apperrors.New(apperrors.ErrCodeBadRequest, "Request body too large", http.StatusRequestEntityTooLarge))
				return
			}
			writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest, "Failed to read request body", err.Error(), http.StatusBadRequest))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
