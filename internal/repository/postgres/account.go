package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ensp1re/beaura-api/internal/domain"
	apperrors "github.com/ensp1re/beaura-api/pkg/errors"
)

// DB is the subset of pgxpool.Pool the repository uses. pgxmock satisfies
// the same set in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, username, email, password_hash, nickname, bio, profile_picture, profile_public_id,
	email_verified, email_verification_token, password_reset_token, password_reset_token_expires,
	credit_balance, status, role, created_at, updated_at`

// Create inserts a new account into the database.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.Nickname,
		a.Bio,
		a.ProfilePicture,
		a.ProfilePublicID,
		a.EmailVerified,
		a.EmailVerificationToken,
		a.PasswordResetToken,
		a.PasswordResetTokenExpires,
		a.CreditBalance,
		a.Status,
		a.Role,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("account", "username or email", a.Username)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(ctx, query, id)
}

// GetByEmail retrieves an account by its email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(ctx, query, email)
}

// GetByUsername retrieves an account by its username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.scanAccount(ctx, query, username)
}

// GetByUsernameOrEmail retrieves an account matching either credential.
func (r *AccountRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1 OR email = $2`
	return r.scanAccount(ctx, query, username, email)
}

// GetByResetToken retrieves the account holding the given reset token.
func (r *AccountRepository) GetByResetToken(ctx context.Context, token string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE password_reset_token = $1 AND password_reset_token <> ''`
	return r.scanAccount(ctx, query, token)
}

// List returns all accounts, newest first.
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := scanInto(rows, &a); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	if accounts == nil {
		accounts = []domain.Account{}
	}

	return accounts, nil
}

// SetVerificationToken overwrites the account's email verification token.
func (r *AccountRepository) SetVerificationToken(ctx context.Context, id, token string) error {
	query := `UPDATE accounts SET email_verification_token = $1, updated_at = $2 WHERE id = $3`

	ct, err := r.db.Exec(ctx, query, token, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// ConsumeVerificationToken flips email_verified and clears the token in a
// single conditional update, so two racing consumers cannot both succeed.
func (r *AccountRepository) ConsumeVerificationToken(ctx context.Context, token string) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET email_verified = true, email_verification_token = '', updated_at = $1
		WHERE email_verification_token = $2 AND email_verification_token <> ''
		RETURNING ` + accountColumns

	return r.scanAccount(ctx, query, time.Now().UTC(), token)
}

// SetResetToken overwrites the account's password reset token and expiry.
func (r *AccountRepository) SetResetToken(ctx context.Context, id, token string, expires time.Time) error {
	query := `UPDATE accounts SET password_reset_token = $1, password_reset_token_expires = $2, updated_at = $3 WHERE id = $4`

	ct, err := r.db.Exec(ctx, query, token, expires, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// ConsumeResetToken stores the new hash and clears the reset fields,
// conditional on the token still being current.
func (r *AccountRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $1, password_reset_token = '', password_reset_token_expires = NULL, updated_at = $2
		WHERE password_reset_token = $3 AND password_reset_token <> ''`

	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), token)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFoundMsg("password reset token not found")
	}

	return nil
}

// UpdatePassword stores a new password hash and clears any outstanding
// reset token.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $1, password_reset_token = '', password_reset_token_expires = NULL, updated_at = $2
		WHERE id = $3`

	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// Delete removes an account from the database by its ID.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// scanAccount executes a query expected to return a single account row.
func (r *AccountRepository) scanAccount(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var a domain.Account
	if err := scanInto(r.db.QueryRow(ctx, query, args...), &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func scanInto(row pgx.Row, a *domain.Account) error {
	return row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Nickname,
		&a.Bio,
		&a.ProfilePicture,
		&a.ProfilePublicID,
		&a.EmailVerified,
		&a.EmailVerificationToken,
		&a.PasswordResetToken,
		&a.PasswordResetTokenExpires,
		&a.CreditBalance,
		&a.Status,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
