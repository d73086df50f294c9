package api

import (
	"net/http"
	"strings"

	"github.com/better-wallet/marketplace/internal/authsig"
	"github.com/better-wallet/marketplace/internal/logger"
	"github.com/better-wallet/marketplace/internal/middleware"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
	"github.com/better-wallet/marketplace/pkg/types"
)

// ChallengeResponse carries a login challenge. Message is the exact text
// the wallet must sign with personal_sign.
type ChallengeResponse struct {
	Message   string            `json:"message"`
	Challenge authsig.Challenge `json:"challenge"`
	ExpiresAt int64             `json:"expiresAt"` // Unix timestamp in milliseconds
}

// LoginResponse is returned by a successful wallet login
type LoginResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

// handleWalletChallenge issues a challenge for ?address=, optionally bound to ?chainId=
func (s *Server) handleWalletChallenge(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	chainID := strings.TrimSpace(r.URL.Query().Get("chainId"))

	v := middleware.NewValidator()
	if v.Required("address", address) {
		v.EthereumAddress("address", address)
	}
	v.HexString("chainId", chainID)
	if v.HasErrors() {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	now := s.now()
	challenge, err := authsig.NewChallenge(s.config.AuthDomain, address, strings.ToLower(chainID), now)
	if err != nil {
		logger.Error(r.Context(), "failed to create login challenge", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}

	message, err := challenge.Canonical()
	if err != nil {
		logger.Error(r.Context(), "failed to encode login challenge", "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}

	s.writeJSON(w, http.StatusOK, ChallengeResponse{
		Message:   string(message),
		Challenge: challenge,
		ExpiresAt: now.Add(authsig.ChallengeTTL).UnixMilli(),
	})
}

// handleWalletLogin exchanges a signed challenge for an access token. The
// signature itself has already been checked by VerifyWalletSignature.
func (s *Server) handleWalletLogin(w http.ResponseWriter, r *http.Request) {
	var req middleware.WalletSignature
	if err := middleware.ValidateJSON(r, &req); err != nil {
		s.writeError(w, apperrors.NewWithDetail(
			apperrors.ErrCodeBadRequest,
			"Invalid request body",
			err.Error(),
			http.StatusBadRequest,
		))
		return
	}

	challenge, err := authsig.ParseChallenge([]byte(req.Message))
	if err != nil {
		s.writeError(w, apperrors.InvalidSignature(err.Error()))
		return
	}

	now := s.now()
	if err := challenge.Validate(s.config.AuthDomain, req.WalletAddress, now); err != nil {
		s.writeError(w, apperrors.InvalidSignature(err.Error()))
		return
	}
	if !s.nonces.consume(challenge.Nonce, now) {
		s.writeError(w, apperrors.InvalidSignature("challenge already used"))
		return
	}

	user, err := s.users.GetOrCreateByWallet(r.Context(), req.WalletAddress)
	if err != nil {
		logger.Error(r.Context(), "failed to load wallet user", "wallet_address", strings.ToLower(req.WalletAddress), "error", err)
		s.writeError(w, apperrors.NewWithDetail(
			apperrors.ErrCodeInternalError,
			"Failed to load user",
			err.Error(),
			http.StatusInternalServerError,
		))
		return
	}

	token, err := s.auth.GenerateToken(user)
	if err != nil {
		logger.Error(r.Context(), "failed to issue token", "user_id", user.ID, "error", err)
		s.writeError(w, apperrors.ErrInternalError)
		return
	}

	logger.Info(r.Context(), "wallet login", "user_id", user.ID, "role", user.Role)
	s.writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// handleMe returns the authenticated user
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		s.writeError(w, apperrors.ErrUnauthorized)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}
