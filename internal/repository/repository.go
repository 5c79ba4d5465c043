package repository

import (
	"context"
	"time"

	"github.com/ensp1re/beaura-api/internal/domain"
)

// AccountRepository defines the credential-store contract the auth service
// depends on. All reads return the account with PasswordHash populated; the
// service strips secrets before returning accounts to its own callers.
// Username/email uniqueness is enforced by the store's unique indexes; the
// service's duplicate pre-check is advisory only.
type AccountRepository interface {
	// Create inserts a new account into the store.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its store-assigned identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByEmail retrieves an account by its (lowercased) email address.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// GetByUsername retrieves an account by its (lowercased) username.
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)

	// GetByUsernameOrEmail retrieves an account matching either credential.
	GetByUsernameOrEmail(ctx context.Context, username, email string) (*domain.Account, error)

	// GetByResetToken retrieves the account currently holding the given
	// password reset token.
	GetByResetToken(ctx context.Context, token string) (*domain.Account, error)

	// List returns all accounts, newest first.
	List(ctx context.Context) ([]domain.Account, error)

	// SetVerificationToken overwrites the account's email verification
	// token, invalidating any previously issued value.
	SetVerificationToken(ctx context.Context, id, token string) error

	// ConsumeVerificationToken marks the account holding the token as
	// verified and clears the token in one atomic update, returning the
	// mutated account. A token that was already consumed is not found.
	ConsumeVerificationToken(ctx context.Context, token string) (*domain.Account, error)

	// SetResetToken overwrites the account's password reset token and its
	// expiry, invalidating any previously issued value.
	SetResetToken(ctx context.Context, id, token string, expires time.Time) error

	// ConsumeResetToken stores the new password hash and clears the reset
	// token fields, conditional on the token still being current. A token
	// that was already consumed is not found.
	ConsumeResetToken(ctx context.Context, token, passwordHash string) error

	// UpdatePassword stores a new password hash for the account and clears
	// any outstanding reset token as a side effect.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// Delete removes an account from the store.
	Delete(ctx context.Context, id string) error
}
