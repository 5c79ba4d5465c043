package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ensp1re/beaura-api/internal/auth"
	"github.com/ensp1re/beaura-api/internal/domain"
	"github.com/ensp1re/beaura-api/internal/event"
	"github.com/ensp1re/beaura-api/internal/storage"
	apperrors "github.com/ensp1re/beaura-api/pkg/errors"
	pkgkafka "github.com/ensp1re/beaura-api/pkg/kafka"
)

// --- Mock Account Repository ---

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*domain.Account, error) {
	args := m.Called(ctx, username, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByResetToken(ctx context.Context, token string) (*domain.Account, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *mockAccountRepository) SetVerificationToken(ctx context.Context, id, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *mockAccountRepository) ConsumeVerificationToken(ctx context.Context, token string) (*domain.Account, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) SetResetToken(ctx context.Context, id, token string, expires time.Time) error {
	args := m.Called(ctx, id, token, expires)
	return args.Error(0)
}

func (m *mockAccountRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string) error {
	args := m.Called(ctx, token, passwordHash)
	return args.Error(0)
}

func (m *mockAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockAccountRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Mailer ---

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendVerificationEmail(ctx context.Context, to, name, link string) error {
	args := m.Called(ctx, to, name, link)
	return args.Error(0)
}

func (m *mockMailer) SendResetPasswordEmail(ctx context.Context, to, name, link string) error {
	args := m.Called(ctx, to, name, link)
	return args.Error(0)
}

func (m *mockMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	args := m.Called(ctx, to, name)
	return args.Error(0)
}

func (m *mockMailer) SendGeneralNotificationEmail(ctx context.Context, to, name, subject, message string) error {
	args := m.Called(ctx, to, name, subject, message)
	return args.Error(0)
}

// --- Mock Image Storage ---

type mockImageStorage struct {
	mock.Mock
}

func (m *mockImageStorage) Upload(ctx context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.UploadResult), args.Error(1)
}

func (m *mockImageStorage) Delete(ctx context.Context, publicID string) error {
	args := m.Called(ctx, publicID)
	return args.Error(0)
}

func (m *mockImageStorage) GetURL(ctx context.Context, publicID string) (string, error) {
	args := m.Called(ctx, publicID)
	return args.String(0), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer("test-secret-key-for-testing", time.Hour, 7*24*time.Hour)
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func newTestService(accounts *mockAccountRepository, mail *mockMailer, images *mockImageStorage) *AuthService {
	return NewAuthService(
		accounts,
		auth.NewArgon2idHasher(),
		newTestIssuer(),
		mail,
		images,
		newTestEventProducer(),
		newTestLogger(),
		"http://localhost:3000",
		time.Hour,
	)
}

func sampleAccount(t *testing.T, password string) *domain.Account {
	t.Helper()
	hash, err := auth.NewArgon2idHasher().Hash(password)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &domain.Account{
		ID:             "a-1234",
		Username:       "alice",
		Email:          "alice@example.com",
		PasswordHash:   hash,
		ProfilePicture: domain.DefaultProfilePicture,
		Status:         domain.StatusFree,
		Role:           domain.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	images := new(mockImageStorage)
	svc := newTestService(accounts, mail, images)
	ctx := context.Background()

	accounts.On("GetByUsernameOrEmail", ctx, "alice", "alice@example.com").Return(nil, apperrors.ErrNotFound)
	mail.On("SendWelcomeEmail", ctx, "alice@example.com", "alice").Return(nil)
	mail.On("SendVerificationEmail", ctx, "alice@example.com", "alice", mock.AnythingOfType("string")).Return(nil)
	accounts.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)

	account, tokens, err := svc.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
	})

	require.NoError(t, err)
	require.NotNil(t, account)
	require.NotNil(t, tokens)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, domain.RoleUser, account.Role)
	assert.Equal(t, domain.StatusFree, account.Status)
	assert.Equal(t, domain.DefaultProfilePicture, account.ProfilePicture)
	assert.False(t, account.EmailVerified)
	assert.NotEmpty(t, account.EmailVerificationToken)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	accounts.AssertExpectations(t)
	mail.AssertExpectations(t)
}

func TestRegister_FoldsCredentialCase(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	images := new(mockImageStorage)
	svc := newTestService(accounts, mail, images)
	ctx := context.Background()

	accounts.On("GetByUsernameOrEmail", ctx, "alice", "alice@example.com").Return(nil, apperrors.ErrNotFound)
	mail.On("SendWelcomeEmail", ctx, "alice@example.com", "alice").Return(nil)
	mail.On("SendVerificationEmail", ctx, "alice@example.com", "alice", mock.AnythingOfType("string")).Return(nil)
	accounts.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)

	account, _, err := svc.Register(ctx, RegisterInput{
		Username: " Alice ",
		Email:    "ALICE@Example.com",
		Password: "secret123",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "alice@example.com", account.Email)
	accounts.AssertExpectations(t)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	images := new(mockImageStorage)
	svc := newTestService(accounts, mail, images)
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByUsernameOrEmail", ctx, "alice", "other@example.com").Return(existing, nil)

	account, tokens, err := svc.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "other@example.com",
		Password: "secret123",
	})

	assert.Nil(t, account)
	assert.Nil(t, tokens)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_ShortPassword(t *testing.T) {
	svc := newTestService(new(mockAccountRepository), new(mockMailer), new(mockImageStorage))

	account, tokens, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "abc",
	})

	assert.Nil(t, account)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRegister_ShortUsername(t *testing.T) {
	svc := newTestService(new(mockAccountRepository), new(mockMailer), new(mockImageStorage))

	_, _, err := svc.Register(context.Background(), RegisterInput{
		Username: "al",
		Email:    "alice@example.com",
		Password: "secret123",
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRegister_EmailDeliveryFailureAborts(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	images := new(mockImageStorage)
	svc := newTestService(accounts, mail, images)
	ctx := context.Background()

	accounts.On("GetByUsernameOrEmail", ctx, "alice", "alice@example.com").Return(nil, apperrors.ErrNotFound)
	mail.On("SendWelcomeEmail", ctx, "alice@example.com", "alice").Return(errors.New("smtp refused"))

	account, tokens, err := svc.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
	})

	assert.Nil(t, account)
	assert.Nil(t, tokens)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_DataURLPictureIsUploaded(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	images := new(mockImageStorage)
	svc := newTestService(accounts, mail, images)
	ctx := context.Background()

	accounts.On("GetByUsernameOrEmail", ctx, "alice", "alice@example.com").Return(nil, apperrors.ErrNotFound)
	images.On("Upload", ctx, mock.AnythingOfType("*storage.UploadInput")).
		Return(&storage.UploadResult{PublicID: "pid-1", URL: "http://cdn/images/pid-1"}, nil)
	mail.On("SendWelcomeEmail", ctx, "alice@example.com", "alice").Return(nil)
	mail.On("SendVerificationEmail", ctx, "alice@example.com", "alice", mock.AnythingOfType("string")).Return(nil)
	accounts.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)

	account, _, err := svc.Register(ctx, RegisterInput{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       "secret123",
		ProfilePicture: "data:image/png;base64,iVBORw0KGgo=",
	})

	require.NoError(t, err)
	assert.Equal(t, "http://cdn/images/pid-1", account.ProfilePicture)
	assert.Equal(t, "pid-1", account.ProfilePublicID)
	images.AssertExpectations(t)
}

func TestRegister_UploadFailureAborts(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	images := new(mockImageStorage)
	svc := newTestService(accounts, mail, images)
	ctx := context.Background()

	accounts.On("GetByUsernameOrEmail", ctx, "alice", "alice@example.com").Return(nil, apperrors.ErrNotFound)
	images.On("Upload", ctx, mock.AnythingOfType("*storage.UploadInput")).
		Return(nil, errors.New("storage down"))

	_, _, err := svc.Register(ctx, RegisterInput{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       "secret123",
		ProfilePicture: "data:image/png;base64,iVBORw0KGgo=",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- Login Tests ---

func TestLogin_ByEmail_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByEmail", ctx, "alice@example.com").Return(existing, nil)

	account, tokens, err := svc.Login(ctx, LoginInput{Credential: "alice@example.com", Password: "secret123"})

	require.NoError(t, err)
	assert.Equal(t, existing.ID, account.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	accounts.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
}

func TestLogin_ByUsername_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByUsername", ctx, "alice").Return(existing, nil)

	account, tokens, err := svc.Login(ctx, LoginInput{Credential: "alice", Password: "secret123"})

	require.NoError(t, err)
	assert.Equal(t, existing.ID, account.ID)
	assert.NotEmpty(t, tokens.RefreshToken)
	accounts.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestLogin_WrongPassword(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByUsername", ctx, "alice").Return(existing, nil)

	account, tokens, err := svc.Login(ctx, LoginInput{Credential: "alice", Password: "wrong-password"})

	assert.Nil(t, account)
	assert.Nil(t, tokens)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLogin_UnknownAccount(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByEmail", ctx, "nobody@example.com").Return(nil, apperrors.ErrNotFound)

	_, _, err := svc.Login(ctx, LoginInput{Credential: "nobody@example.com", Password: "secret123"})

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- Refresh Tests ---

func TestRefresh_Success_RotatesPair(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByID", ctx, existing.ID).Return(existing, nil)

	_, refresh, err := newTestIssuer().Issue(existing.ID, existing.Username, existing.Email, existing.Role)
	require.NoError(t, err)

	account, tokens, err := svc.Refresh(ctx, refresh)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, account.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
}

func TestRefresh_InvalidToken(t *testing.T) {
	svc := newTestService(new(mockAccountRepository), new(mockMailer), new(mockImageStorage))

	_, _, err := svc.Refresh(context.Background(), "not-a-jwt")

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_DeletedAccount(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByID", ctx, "a-1234").Return(nil, apperrors.ErrNotFound)

	_, refresh, err := newTestIssuer().Issue("a-1234", "alice", "alice@example.com", domain.RoleUser)
	require.NoError(t, err)

	_, _, err = svc.Refresh(ctx, refresh)

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- Email verification ---

func TestRequestEmailVerification_AlreadyVerified(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	existing.EmailVerified = true
	accounts.On("GetByEmail", ctx, existing.Email).Return(existing, nil)

	err := svc.RequestEmailVerification(ctx, existing.Email)

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	accounts.AssertNotCalled(t, "SetVerificationToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestEmailVerification_UnknownEmail(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByEmail", ctx, "nobody@example.com").Return(nil, apperrors.ErrNotFound)

	err := svc.RequestEmailVerification(ctx, "nobody@example.com")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRequestEmailVerification_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByEmail", ctx, existing.Email).Return(existing, nil)
	accounts.On("SetVerificationToken", ctx, existing.ID, mock.AnythingOfType("string")).Return(nil)
	mail.On("SendVerificationEmail", ctx, existing.Email, existing.Username, mock.AnythingOfType("string")).Return(nil)

	// The address is folded before lookup.
	err := svc.RequestEmailVerification(ctx, "  "+strings.ToUpper(existing.Email)+"  ")

	require.NoError(t, err)
	accounts.AssertExpectations(t)
	mail.AssertExpectations(t)
}

func TestVerifyEmail_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	verified := sampleAccount(t, "secret123")
	verified.EmailVerified = true
	accounts.On("ConsumeVerificationToken", ctx, "token-1").Return(verified, nil)
	mail.On("SendGeneralNotificationEmail", ctx, verified.Email, verified.Username,
		"Email Verified", mock.AnythingOfType("string")).Return(nil)

	account, err := svc.VerifyEmail(ctx, "token-1")

	require.NoError(t, err)
	assert.True(t, account.EmailVerified)
}

func TestVerifyEmail_InvalidToken(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	accounts.On("ConsumeVerificationToken", ctx, "stale").Return(nil, apperrors.ErrNotFound)

	account, err := svc.VerifyEmail(ctx, "stale")

	assert.Nil(t, account)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestVerifyEmail_NotificationFailureReported(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	verified := sampleAccount(t, "secret123")
	verified.EmailVerified = true
	accounts.On("ConsumeVerificationToken", ctx, "token-1").Return(verified, nil)
	mail.On("SendGeneralNotificationEmail", ctx, verified.Email, verified.Username,
		"Email Verified", mock.AnythingOfType("string")).Return(errors.New("smtp refused"))

	account, err := svc.VerifyEmail(ctx, "token-1")

	// The verification stays committed, but the failed confirmation email
	// surfaces to the caller.
	assert.Nil(t, account)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	accounts.AssertCalled(t, "ConsumeVerificationToken", ctx, "token-1")
}

// --- Password recovery ---

func TestForgotPassword_UnknownEmail(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByEmail", ctx, "nobody@example.com").Return(nil, apperrors.ErrNotFound)

	err := svc.ForgotPassword(ctx, "nobody@example.com")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestForgotPassword_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByEmail", ctx, existing.Email).Return(existing, nil)
	accounts.On("SetResetToken", ctx, existing.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)
	mail.On("SendResetPasswordEmail", ctx, existing.Email, existing.Username, mock.AnythingOfType("string")).Return(nil)

	err := svc.ForgotPassword(ctx, existing.Email)

	require.NoError(t, err)
	accounts.AssertExpectations(t)
	mail.AssertExpectations(t)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	expired := time.Now().UTC().Add(-time.Minute)
	existing.PasswordResetToken = "reset-1"
	existing.PasswordResetTokenExpires = &expired
	accounts.On("GetByResetToken", ctx, "reset-1").Return(existing, nil)

	err := svc.ResetPassword(ctx, "reset-1", "newsecret")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Contains(t, err.Error(), "expired")
	accounts.AssertNotCalled(t, "ConsumeResetToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_InvalidToken(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByResetToken", ctx, "stale").Return(nil, apperrors.ErrNotFound)

	err := svc.ResetPassword(ctx, "stale", "newsecret")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestResetPassword_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	future := time.Now().UTC().Add(30 * time.Minute)
	existing.PasswordResetToken = "reset-1"
	existing.PasswordResetTokenExpires = &future
	accounts.On("GetByResetToken", ctx, "reset-1").Return(existing, nil)
	accounts.On("ConsumeResetToken", ctx, "reset-1", mock.AnythingOfType("string")).Return(nil)
	mail.On("SendGeneralNotificationEmail", ctx, existing.Email, existing.Username,
		"Password Changed", mock.AnythingOfType("string")).Return(nil)

	err := svc.ResetPassword(ctx, "reset-1", "newsecret")

	require.NoError(t, err)
	accounts.AssertExpectations(t)
}

func TestResetPassword_NotificationFailureReported(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	future := time.Now().UTC().Add(30 * time.Minute)
	existing.PasswordResetToken = "reset-1"
	existing.PasswordResetTokenExpires = &future
	accounts.On("GetByResetToken", ctx, "reset-1").Return(existing, nil)
	accounts.On("ConsumeResetToken", ctx, "reset-1", mock.AnythingOfType("string")).Return(nil)
	mail.On("SendGeneralNotificationEmail", ctx, existing.Email, existing.Username,
		"Password Changed", mock.AnythingOfType("string")).Return(errors.New("smtp refused"))

	err := svc.ResetPassword(ctx, "reset-1", "newsecret")

	// The reset is already consumed and the hash updated; the send failure
	// still surfaces.
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	accounts.AssertCalled(t, "ConsumeResetToken", ctx, "reset-1", mock.AnythingOfType("string"))
}

func TestResetPassword_ConsumedByConcurrentRequest(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	future := time.Now().UTC().Add(30 * time.Minute)
	existing.PasswordResetToken = "reset-1"
	existing.PasswordResetTokenExpires = &future
	accounts.On("GetByResetToken", ctx, "reset-1").Return(existing, nil)
	accounts.On("ConsumeResetToken", ctx, "reset-1", mock.AnythingOfType("string")).Return(apperrors.ErrNotFound)

	err := svc.ResetPassword(ctx, "reset-1", "newsecret")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// --- ChangePassword ---

func TestChangePassword_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByID", ctx, existing.ID).Return(existing, nil)
	accounts.On("UpdatePassword", ctx, existing.ID, mock.AnythingOfType("string")).Return(nil)
	mail.On("SendGeneralNotificationEmail", ctx, existing.Email, existing.Username,
		"Password Changed", mock.AnythingOfType("string")).Return(nil)

	err := svc.ChangePassword(ctx, existing.ID, "secret123", "newsecret")

	require.NoError(t, err)
	accounts.AssertExpectations(t)
}

func TestChangePassword_NotificationFailureReported(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByID", ctx, existing.ID).Return(existing, nil)
	accounts.On("UpdatePassword", ctx, existing.ID, mock.AnythingOfType("string")).Return(nil)
	mail.On("SendGeneralNotificationEmail", ctx, existing.Email, existing.Username,
		"Password Changed", mock.AnythingOfType("string")).Return(errors.New("smtp refused"))

	err := svc.ChangePassword(ctx, existing.ID, "secret123", "newsecret")

	// The new password is already persisted; the send failure still surfaces.
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	accounts.AssertCalled(t, "UpdatePassword", ctx, existing.ID, mock.AnythingOfType("string"))
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByID", ctx, existing.ID).Return(existing, nil)

	err := svc.ChangePassword(ctx, existing.ID, "wrong-password", "newsecret")

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	accounts.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePassword_SamePassword(t *testing.T) {
	svc := newTestService(new(mockAccountRepository), new(mockMailer), new(mockImageStorage))

	err := svc.ChangePassword(context.Background(), "a-1234", "secret123", "secret123")

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Google sign-in ---

func TestGoogleSignIn_ExistingAccount(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByEmail", ctx, existing.Email).Return(existing, nil)

	account, tokens, err := svc.GoogleSignIn(ctx, GoogleSignInInput{Email: existing.Email, Name: "Alice"})

	require.NoError(t, err)
	assert.Equal(t, existing.ID, account.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGoogleSignIn_NewAccount(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByEmail", ctx, "bob.smith+dev@example.com").Return(nil, apperrors.ErrNotFound)
	accounts.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)
	mail.On("SendWelcomeEmail", ctx, "bob.smith+dev@example.com", mock.AnythingOfType("string")).Return(nil)

	account, tokens, err := svc.GoogleSignIn(ctx, GoogleSignInInput{
		Email:         "Bob.Smith+dev@example.com",
		Name:          "Bob Smith",
		Picture:       "https://lh3.example.com/photo.jpg",
		EmailVerified: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "bobsmithdev", account.Username)
	assert.Equal(t, "bob.smith+dev@example.com", account.Email)
	assert.True(t, account.EmailVerified)
	assert.Equal(t, "Bob Smith", account.Nickname)
	assert.Equal(t, "https://lh3.example.com/photo.jpg", account.ProfilePicture)
	assert.NotEmpty(t, account.PasswordHash)
	assert.NotEmpty(t, tokens.AccessToken)
	accounts.AssertExpectations(t)
}

func TestGoogleSignIn_UnverifiedGoogleEmail(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByEmail", ctx, "carol@example.com").Return(nil, apperrors.ErrNotFound)
	accounts.On("Create", ctx, mock.AnythingOfType("*domain.Account")).Return(nil)
	mail.On("SendWelcomeEmail", ctx, "carol@example.com", mock.AnythingOfType("string")).Return(nil)

	account, _, err := svc.GoogleSignIn(ctx, GoogleSignInInput{
		Email:         "carol@example.com",
		Name:          "Carol",
		EmailVerified: false,
	})

	require.NoError(t, err)
	// Google's verification assertion carries through instead of being assumed.
	assert.False(t, account.EmailVerified)
}

// --- Account operations ---

func TestDeleteAccount_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	images := new(mockImageStorage)
	svc := newTestService(accounts, mail, images)
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	existing.ProfilePublicID = "pid-1"
	accounts.On("GetByID", ctx, existing.ID).Return(existing, nil)
	accounts.On("Delete", ctx, existing.ID).Return(nil)
	images.On("Delete", ctx, "pid-1").Return(nil)
	mail.On("SendGeneralNotificationEmail", ctx, existing.Email, existing.Username,
		"Account Deleted", mock.AnythingOfType("string")).Return(nil)

	err := svc.DeleteAccount(ctx, existing.ID)

	require.NoError(t, err)
	accounts.AssertExpectations(t)
	images.AssertExpectations(t)
}

func TestDeleteAccount_NotificationFailureAbortsDelete(t *testing.T) {
	accounts := new(mockAccountRepository)
	mail := new(mockMailer)
	svc := newTestService(accounts, mail, new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("GetByID", ctx, existing.ID).Return(existing, nil)
	mail.On("SendGeneralNotificationEmail", ctx, existing.Email, existing.Username,
		"Account Deleted", mock.AnythingOfType("string")).Return(errors.New("smtp refused"))

	err := svc.DeleteAccount(ctx, existing.ID)

	// Once the row is gone there is no address on record, so the farewell
	// email goes out first and a failed send keeps the account.
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	accounts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestGetAccount_NotFound(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	accounts.On("GetByID", ctx, "missing").Return(nil, apperrors.ErrNotFound)

	account, err := svc.GetAccount(ctx, "missing")

	assert.Nil(t, account)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListAccounts_Success(t *testing.T) {
	accounts := new(mockAccountRepository)
	svc := newTestService(accounts, new(mockMailer), new(mockImageStorage))
	ctx := context.Background()

	existing := sampleAccount(t, "secret123")
	accounts.On("List", ctx).Return([]domain.Account{*existing}, nil)

	list, err := svc.ListAccounts(ctx)

	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, existing.ID, list[0].ID)
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "bobsmithdev", usernameFromEmail("Bob.Smith+dev@example.com"))
	assert.Equal(t, "alice", usernameFromEmail("alice@example.com"))
	assert.Equal(t, "user42", usernameFromEmail("User_42@example.com"))
}
