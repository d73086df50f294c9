package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/better-wallet/marketplace/internal/upload"
	"github.com/better-wallet/marketplace/pkg/types"
)

// UserStore is the subset of storage.UserRepository used by the API layer.
// It is an interface to allow handler-level unit tests without a database.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.User, error)
	GetOrCreateByWallet(ctx context.Context, walletAddress string) (*types.User, error)
}

// Uploader is the subset of upload.Presigner used by the upload handlers.
type Uploader interface {
	PresignPut(ctx context.Context, ownerID, fileName, fileType string) (*upload.Presigned, error)
	Delete(ctx context.Context, key string) error
}

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}
