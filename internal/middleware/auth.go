package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/better-wallet/marketplace/internal/logger"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
	"github.com/better-wallet/marketplace/pkg/types"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserKey is the context key for the authenticated *types.User
	UserKey ContextKey = "user"
	// WalletAddressKey is the context key for the caller's wallet address
	WalletAddressKey ContextKey = "wallet_address"
)

// TokenTTL is the lifetime of issued access tokens.
const TokenTTL = 24 * time.Hour

// UserLookup loads the user named by a token subject.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.User, error)
}

// Claims are the access token claims. The subject is the user ID.
type Claims struct {
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	WalletAddress string `json:"walletAddress"`
	jwt.RegisteredClaims
}

// AuthMiddleware issues and validates HS256 access tokens
type AuthMiddleware struct {
	secret []byte
	users  UserLookup
	now    func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(secret string, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		users:  users,
		now:    time.Now,
	}
}

// GenerateToken signs an access token for user valid for TokenTTL.
func (m *AuthMiddleware) GenerateToken(user *types.User) (string, error) {
	now := m.now()
	claims := Claims{
		Role:          user.Role,
		WalletAddress: user.WalletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	if user.Email != nil {
		claims.Email = *user.Email
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates tokenString and returns its claims.
func (m *AuthMiddleware) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// Authenticate is the middleware function that validates bearer tokens and
// loads the user they name into the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeError(w, apperrors.ErrUnauthorized)
			return
		}

		claims, err := m.ParseToken(parts[1])
		if err != nil {
			writeError(w, apperrors.NewWithDetail(
				apperrors.ErrCodeUnauthorized,
				"Invalid token",
				err.Error(),
				http.StatusUnauthorized,
			))
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			writeError(w, apperrors.NewWithDetail(
				apperrors.ErrCodeUnauthorized,
				"Invalid token",
				"subject is not a user ID",
				http.StatusUnauthorized,
			))
			return
		}

		user, err := m.users.GetByID(r.Context(), userID)
		if err != nil {
			logger.Error(r.Context(), "failed to load token user", "user_id", userID, "error", err)
			writeError(w, apperrors.ErrInternalError)
			return
		}
		if user == nil {
			writeError(w, apperrors.New(apperrors.ErrCodeUnauthorized, "User not found", http.StatusUnauthorized))
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated users whose role is not in roles. It
// must run after Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				writeError(w, apperrors.ErrUnauthorized)
				return
			}
			if !slices.Contains(roles, user.Role) {
				writeError(w, apperrors.NewWithDetail(
					apperrors.ErrCodeForbidden,
					"Access denied",
					fmt.Sprintf("requires role %s", strings.Join(roles, " or ")),
					http.StatusForbidden,
				))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUser extracts the authenticated user from the request context
func GetUser(ctx context.Context) (*types.User, bool) {
	user, ok := ctx.Value(UserKey).(*types.User)
	return user, ok && user != nil
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}
