// Package users is the user directory: accounts and their password
// credentials. Backends: postgres (users + credentials tables), memory and
// an atomically rewritten JSON file.
package users

import (
	"context"

	"github.com/dmitrijs2005/fieldauth/internal/server/models"
)

// Repository is the directory port used by the session facade.
type Repository interface {
	// GetByUsername returns common.ErrorNotFound for unknown usernames.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	// Create stores the user and its credential together. It returns
	// common.ErrUsernameTaken or, for a second admin,
	// common.ErrAlreadyBootstrapped.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	UpdatePasswordHash(ctx context.Context, userID, hash, algorithm string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	CountByRole(ctx context.Context, role string) (int, error)
}
