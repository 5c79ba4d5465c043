package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ensp1re/beaura-api/internal/auth"
	"github.com/ensp1re/beaura-api/internal/domain"
	"github.com/ensp1re/beaura-api/internal/event"
	"github.com/ensp1re/beaura-api/internal/mailer"
	"github.com/ensp1re/beaura-api/internal/repository"
	"github.com/ensp1re/beaura-api/internal/storage"
	apperrors "github.com/ensp1re/beaura-api/pkg/errors"
)

// minPasswordLength is the minimum password length required.
const minPasswordLength = 6

// minUsernameLength is the minimum username length required.
const minUsernameLength = 3

// emailPattern decides whether a login credential is an email address or a
// username.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// nonAlnumPattern strips characters that are not allowed in derived usernames.
var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]`)

// AuthService implements the business logic for account and auth operations.
type AuthService struct {
	accounts         repository.AccountRepository
	hasher           auth.PasswordHasher
	issuer           *auth.TokenIssuer
	mail             mailer.Mailer
	images           storage.ImageStorage
	producer         *event.Producer
	logger           *slog.Logger
	clientURL        string
	resetTokenExpiry time.Duration
}

// NewAuthService creates a new auth service.
func NewAuthService(
	accounts repository.AccountRepository,
	hasher auth.PasswordHasher,
	issuer *auth.TokenIssuer,
	mail mailer.Mailer,
	images storage.ImageStorage,
	producer *event.Producer,
	logger *slog.Logger,
	clientURL string,
	resetTokenExpiry time.Duration,
) *AuthService {
	return &AuthService{
		accounts:         accounts,
		hasher:           hasher,
		issuer:           issuer,
		mail:             mail,
		images:           images,
		producer:         producer,
		logger:           logger,
		clientURL:        clientURL,
		resetTokenExpiry: resetTokenExpiry,
	}
}

// --- Input types ---

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Nickname string
	Bio      string
	// ProfilePicture is either a regular URL or a base64 data URL. Data URLs
	// are uploaded to image storage before the account is persisted.
	ProfilePicture string
}

// LoginInput holds the parameters for logging in. Credential accepts either
// an email address or a username.
type LoginInput struct {
	Credential string
	Password   string
}

// GoogleSignInInput holds the identity asserted by Google sign-in.
type GoogleSignInInput struct {
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// --- Auth Operations ---

// Register creates a new account, hashes the password, delivers the welcome
// and verification emails, and returns the account with a fresh token pair.
// Email delivery failure aborts registration before anything is persisted.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Account, *domain.TokenPair, error) {
	// Credentials are case-folded at write time so logins are case-insensitive.
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if len(input.Username) < minUsernameLength {
		return nil, nil, apperrors.InvalidInput(fmt.Sprintf("username must be at least %d characters", minUsernameLength))
	}
	if input.Email == "" || !emailPattern.MatchString(input.Email) {
		return nil, nil, apperrors.InvalidInput("a valid email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	// Pre-check for duplicates to fail fast with a clear message. The unique
	// indexes on username and email remain authoritative under races.
	if _, err := s.accounts.GetByUsernameOrEmail(ctx, input.Username, input.Email); err == nil {
		return nil, nil, apperrors.AlreadyExists("account", "username or email", input.Username)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	pictureURL, publicID, err := s.resolveProfileImage(ctx, input.ProfilePicture)
	if err != nil {
		return nil, nil, err
	}

	verificationToken, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generate verification token: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:                     uuid.New().String(),
		Username:               input.Username,
		Email:                  input.Email,
		PasswordHash:           hash,
		Nickname:               input.Nickname,
		Bio:                    input.Bio,
		ProfilePicture:         pictureURL,
		ProfilePublicID:        publicID,
		EmailVerified:          false,
		EmailVerificationToken: verificationToken,
		CreditBalance:          0,
		Status:                 domain.StatusFree,
		Role:                   domain.RoleUser,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	// Deliver both emails before persisting so a failed registration never
	// leaves an account the user was not told about.
	if err := s.mail.SendWelcomeEmail(ctx, account.Email, account.Username); err != nil {
		return nil, nil, apperrors.ServiceUnavailable("could not send welcome email", err)
	}
	if err := s.mail.SendVerificationEmail(ctx, account.Email, account.Username, s.verificationLink(verificationToken)); err != nil {
		return nil, nil, apperrors.ServiceUnavailable("could not send verification email", err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	tokens, err := s.issueTokenPair(account)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishAccountRegistered(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.registered event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)

	return account, tokens, nil
}

// Login authenticates with an email or username plus password.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.Account, *domain.TokenPair, error) {
	input.Credential = strings.ToLower(strings.TrimSpace(input.Credential))

	if input.Credential == "" {
		return nil, nil, apperrors.InvalidInput("email or username is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	var (
		account *domain.Account
		err     error
	)
	if emailPattern.MatchString(input.Credential) {
		account, err = s.accounts.GetByEmail(ctx, input.Credential)
	} else {
		account, err = s.accounts.GetByUsername(ctx, input.Credential)
	}
	if err != nil {
		return nil, nil, apperrors.Unauthorized("invalid credentials")
	}

	ok, err := s.hasher.Verify(input.Password, account.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, nil, apperrors.Unauthorized("invalid credentials")
	}

	tokens, err := s.issueTokenPair(account)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "account logged in",
		slog.String("account_id", account.ID),
	)

	return account, tokens, nil
}

// Refresh validates a refresh token and rotates the full token pair. The new
// pair reflects the account's current role and email.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Account, *domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, nil, apperrors.InvalidInput("refresh token is required")
	}

	claims, err := s.issuer.Verify(refreshToken)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("account no longer exists")
	}

	tokens, err := s.issueTokenPair(account)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("account_id", account.ID),
	)

	return account, tokens, nil
}

// GoogleSignIn logs in an existing account by the asserted email, or creates
// one with a derived username and a random password. Google accounts start
// with a verified email.
func (s *AuthService) GoogleSignIn(ctx context.Context, input GoogleSignInInput) (*domain.Account, *domain.TokenPair, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if input.Email == "" || !emailPattern.MatchString(input.Email) {
		return nil, nil, apperrors.InvalidInput("a valid email is required")
	}

	account, err := s.accounts.GetByEmail(ctx, input.Email)
	if err == nil {
		tokens, err := s.issueTokenPair(account)
		if err != nil {
			return nil, nil, fmt.Errorf("generate tokens: %w", err)
		}
		s.logger.InfoContext(ctx, "account logged in via google",
			slog.String("account_id", account.ID),
		)
		return account, tokens, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, fmt.Errorf("look up google account: %w", err)
	}

	// The account does not exist yet. Derive a password the user never sees;
	// password login stays possible only after a reset.
	randomPassword, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generate random password: %w", err)
	}
	hash, err := s.hasher.Hash(randomPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("hash random password: %w", err)
	}

	picture := input.Picture
	if picture == "" {
		picture = domain.DefaultProfilePicture
	}

	now := time.Now().UTC()
	account = &domain.Account{
		ID:             uuid.New().String(),
		Username:       usernameFromEmail(input.Email),
		Email:          input.Email,
		PasswordHash:   hash,
		Nickname:       input.Name,
		ProfilePicture: picture,
		EmailVerified:  input.EmailVerified,
		CreditBalance:  0,
		Status:         domain.StatusFree,
		Role:           domain.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, nil, fmt.Errorf("create google account: %w", err)
	}

	if err := s.mail.SendWelcomeEmail(ctx, account.Email, account.Username); err != nil {
		s.logger.ErrorContext(ctx, "failed to send welcome email",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	tokens, err := s.issueTokenPair(account)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	if err := s.producer.PublishAccountRegistered(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.registered event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account registered via google",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)

	return account, tokens, nil
}

// --- Email verification ---

// RequestEmailVerification issues a fresh verification token for the account
// holding the given email and sends the link. Any previously issued token
// stops working.
func (s *AuthService) RequestEmailVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("account with this email does not exist")
		}
		return fmt.Errorf("get account for verification request: %w", err)
	}

	if account.EmailVerified {
		return apperrors.InvalidInput("email is already verified")
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}

	if err := s.accounts.SetVerificationToken(ctx, account.ID, token); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	if err := s.mail.SendVerificationEmail(ctx, account.Email, account.Username, s.verificationLink(token)); err != nil {
		return apperrors.ServiceUnavailable("could not send verification email", err)
	}

	s.logger.InfoContext(ctx, "email verification requested",
		slog.String("account_id", account.ID),
	)

	return nil
}

// VerifyEmail consumes a verification token and marks the email verified.
// The token is single use.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, apperrors.InvalidInput("verification token is required")
	}

	account, err := s.accounts.ConsumeVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMsg("no account holds this verification token")
		}
		return nil, fmt.Errorf("consume verification token: %w", err)
	}

	if err := s.producer.PublishAccountEmailVerified(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.email_verified event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "email verified",
		slog.String("account_id", account.ID),
	)

	// The verification is committed and stays committed, but a failed
	// confirmation email is still reported to the caller.
	if err := s.mail.SendGeneralNotificationEmail(ctx, account.Email, account.Username,
		"Email Verified", "Your email address has been verified."); err != nil {
		return nil, apperrors.ServiceUnavailable("could not send verification confirmation email", err)
	}

	return account, nil
}

// --- Password recovery ---

// ForgotPassword issues a time-limited reset token and emails the reset link.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("account with this email does not exist")
		}
		return fmt.Errorf("get account for password reset: %w", err)
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expires := time.Now().UTC().Add(s.resetTokenExpiry)
	if err := s.accounts.SetResetToken(ctx, account.ID, token, expires); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if err := s.mail.SendResetPasswordEmail(ctx, account.Email, account.Username, s.resetLink(token)); err != nil {
		return apperrors.ServiceUnavailable("could not send password reset email", err)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("account_id", account.ID),
	)

	return nil
}

// ResetPassword consumes a reset token and stores the new password. The
// token is single use and expires.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return apperrors.InvalidInput("reset token is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	account, err := s.accounts.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("no account holds this reset token")
		}
		return fmt.Errorf("get account by reset token: %w", err)
	}

	if account.PasswordResetTokenExpires == nil || time.Now().UTC().After(*account.PasswordResetTokenExpires) {
		return apperrors.Unauthorized("password reset token has expired")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	// Conditional update; a concurrent consumer of the same token loses.
	if err := s.accounts.ConsumeResetToken(ctx, token, hash); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("no account holds this reset token")
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	if err := s.producer.PublishAccountPasswordReset(ctx, account.ID, account.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.password_reset event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("account_id", account.ID),
	)

	// The new password is committed either way; a failed confirmation email
	// is still reported to the caller.
	if err := s.mail.SendGeneralNotificationEmail(ctx, account.Email, account.Username,
		"Password Changed", "Your password has been changed successfully."); err != nil {
		return apperrors.ServiceUnavailable("could not send password changed email", err)
	}

	return nil
}

// ChangePassword allows an authenticated account to change its password.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for password change: %w", err)
	}

	ok, err := s.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("account_id", account.ID),
	)

	// The new password is committed either way; a failed confirmation email
	// is still reported to the caller.
	if err := s.mail.SendGeneralNotificationEmail(ctx, account.Email, account.Username,
		"Password Changed", "Your password has been changed successfully."); err != nil {
		return apperrors.ServiceUnavailable("could not send password changed email", err)
	}

	return nil
}

// --- Account operations ---

// GetAccount retrieves an account by its ID.
func (s *AuthService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// ListAccounts returns all accounts.
func (s *AuthService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// DeleteAccount removes an account and its uploaded profile image.
func (s *AuthService) DeleteAccount(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for deletion: %w", err)
	}

	// Notify first: once the account is gone there is no address on record,
	// and a failed send leaves the account intact.
	if err := s.mail.SendGeneralNotificationEmail(ctx, account.Email, account.Username,
		"Account Deleted", "Your account and its data have been removed."); err != nil {
		return apperrors.ServiceUnavailable("could not send account deleted email", err)
	}

	if err := s.accounts.Delete(ctx, account.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if account.ProfilePublicID != "" {
		if err := s.images.Delete(ctx, account.ProfilePublicID); err != nil {
			s.logger.ErrorContext(ctx, "failed to delete profile image",
				slog.String("account_id", account.ID),
				slog.String("public_id", account.ProfilePublicID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.producer.PublishAccountDeleted(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.deleted event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account deleted",
		slog.String("account_id", account.ID),
	)

	return nil
}

// --- Helpers ---

// issueTokenPair creates a fresh self-contained access/refresh token pair.
func (s *AuthService) issueTokenPair(account *domain.Account) (*domain.TokenPair, error) {
	access, refresh, err := s.issuer.Issue(account.ID, account.Username, account.Email, account.Role)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// resolveProfileImage turns the register payload's picture field into a URL
// and storage public ID. Data URLs are uploaded; upload failure is fatal so
// an account is never created with a half-finished profile.
func (s *AuthService) resolveProfileImage(ctx context.Context, picture string) (url, publicID string, err error) {
	switch {
	case picture == "":
		return domain.DefaultProfilePicture, "", nil
	case strings.HasPrefix(picture, "data:"):
		contentType, data, err := storage.ParseDataURL(picture)
		if err != nil {
			return "", "", apperrors.InvalidInput("profile picture must be a valid base64 data URL")
		}
		result, err := s.images.Upload(ctx, &storage.UploadInput{
			PublicID:    uuid.New().String(),
			ContentType: contentType,
			Data:        data,
		})
		if err != nil {
			return "", "", apperrors.ServiceUnavailable("could not upload profile image", err)
		}
		return result.URL, result.PublicID, nil
	default:
		return picture, "", nil
	}
}

func (s *AuthService) verificationLink(token string) string {
	return fmt.Sprintf("%s/verify-email?token=%s", s.clientURL, token)
}

func (s *AuthService) resetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", s.clientURL, token)
}

// usernameFromEmail derives a username from the local part of an email
// address, lowercased with non-alphanumerics removed.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return nonAlnumPattern.ReplaceAllString(strings.ToLower(local), "")
}

// validatePassword checks that the password meets the minimum length.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return nil
}
