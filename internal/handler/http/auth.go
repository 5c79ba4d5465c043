package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ensp1re/beaura-api/internal/domain"
	"github.com/ensp1re/beaura-api/internal/service"
	"github.com/ensp1re/beaura-api/pkg/middleware"
	"github.com/ensp1re/beaura-api/pkg/validator"
)

// RefreshTokenCookie is the name of the cookie carrying the refresh token.
const RefreshTokenCookie = "refreshToken"

// Cookie lifetimes in seconds.
const (
	accessCookieMaxAge  = 60 * 60      // 1 hour, matches the access token
	refreshCookieMaxAge = 24 * 60 * 60 // 1 day
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for account registration.
type RegisterRequest struct {
	Username       string `json:"username" validate:"required,min=3,max=50"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=6"`
	Nickname       string `json:"nickname" validate:"omitempty,max=100"`
	Bio            string `json:"bio" validate:"omitempty,min=6,max=500"`
	ProfilePicture string `json:"profilePicture" validate:"omitempty"`
}

// LoginRequest is the JSON request body for login. Username accepts either a
// username or an email address.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// GoogleSignInRequest is the JSON request body for Google sign-in.
type GoogleSignInRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Name          string `json:"name" validate:"omitempty,max=100"`
	Picture       string `json:"picture" validate:"omitempty,url"`
	EmailVerified bool   `json:"emailVerified"`
}

// RefreshTokenRequest is the JSON request body for token refresh. The token
// may instead arrive via the refreshToken cookie.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"omitempty"`
}

// RequestVerificationRequest is the JSON request body for requesting a fresh
// email verification link.
type RequestVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyEmailRequest is the JSON request body for email verification.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// ForgotPasswordRequest is the JSON request body for forgot password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the JSON request body for password reset. The
// confirmation field must repeat the new password exactly.
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// ChangePasswordRequest is the JSON request body for password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// --- Response types ---

// AuthResponse wraps account data with tokens.
type AuthResponse struct {
	User   any `json:"user"`
	Tokens any `json:"tokens"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	// Generous limit: the profile picture may arrive as a base64 data URL.
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := service.RegisterInput{
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		Nickname:       req.Nickname,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
	}

	account, tokens, err := h.service.Register(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	setAuthCookies(w, tokens)
	writeJSON(w, http.StatusCreated, response{
		Data: AuthResponse{
			User:   account,
			Tokens: tokens,
		},
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := service.LoginInput{
		Credential: req.Username,
		Password:   req.Password,
	}

	account, tokens, err := h.service.Login(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, response{
		Data: AuthResponse{
			User:   account,
			Tokens: tokens,
		},
	})
}

// GoogleSignIn handles POST /api/v1/auth/google
func (h *AuthHandler) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req GoogleSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := service.GoogleSignInInput{
		Email:         req.Email,
		Name:          req.Name,
		Picture:       req.Picture,
		EmailVerified: req.EmailVerified,
	}

	account, tokens, err := h.service.GoogleSignIn(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, response{
		Data: AuthResponse{
			User:   account,
			Tokens: tokens,
		},
	})
}

// RefreshToken handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RefreshTokenRequest
	// An empty or missing body is fine when the cookie carries the token.
	_ = json.NewDecoder(r.Body).Decode(&req)

	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(RefreshTokenCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "refresh token is required"},
		})
		return
	}

	account, tokens, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	setAuthCookies(w, tokens)
	writeJSON(w, http.StatusOK, response{
		Data: AuthResponse{
			User:   account,
			Tokens: tokens,
		},
	})
}

// RequestEmailVerification handles POST /api/v1/auth/request-verification
func (h *AuthHandler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RequestVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.RequestEmailVerification(r.Context(), req.Email); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Data: map[string]string{"message": "verification email has been sent"},
	})
}

// VerifyEmail handles POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	account, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: account})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Data: map[string]string{"message": "a password reset link has been sent"},
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Data: map[string]string{"message": "password has been reset successfully"},
	})
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())
	if accountID == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "not authenticated"},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Data: map[string]string{"message": "password has been changed successfully"},
	})
}

// Logout handles POST /api/v1/auth/logout. Tokens are self-contained, so
// logout just clears the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearAuthCookies(w)
	writeJSON(w, http.StatusOK, response{
		Data: map[string]string{"message": "logged out"},
	})
}

// --- Cookie helpers ---

func setAuthCookies(w http.ResponseWriter, tokens *domain.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   accessCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    tokens.RefreshToken,
		Path:     "/",
		MaxAge:   refreshCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
