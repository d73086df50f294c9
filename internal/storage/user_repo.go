package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/marketplace/pkg/types"
)

const userColumns = `id, wallet_address, email, name, role, created_at, updated_at`

// UserRepository handles user data operations
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user for walletAddress with the given role.
func (r *UserRepository) Create(ctx context.Context, walletAddress, role string) (*types.User, error) {
	if role == "" {
		role = types.RoleBuyer
	}
	if !types.IsValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	query := `
		INSERT INTO users (id, wallet_address, role)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, uuid.New(), normalizeAddress(walletAddress), role))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID. It returns nil, nil when no user exists.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// GetByWalletAddress retrieves a user by wallet address (case-insensitive).
func (r *UserRepository) GetByWalletAddress(ctx context.Context, walletAddress string) (*types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet_address = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, normalizeAddress(walletAddress)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by wallet address: %w", err)
	}
	return user, nil
}

// GetOrCreateByWallet gets a user by wallet address or creates a buyer if it doesn't exist
func (r *UserRepository) GetOrCreateByWallet(ctx context.Context, walletAddress string) (*types.User, error) {
	user, err := r.GetByWalletAddress(ctx, walletAddress)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	return r.Create(ctx, walletAddress, types.RoleBuyer)
}

func scanUser(row pgx.Row) (*types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.WalletAddress,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
