package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ensp1re/beaura-api/internal/auth"
	"github.com/ensp1re/beaura-api/internal/domain"
	"github.com/ensp1re/beaura-api/internal/service"
	"github.com/ensp1re/beaura-api/pkg/health"
	"github.com/ensp1re/beaura-api/pkg/middleware"
)

// NewRouter creates a chi router with all API routes registered.
func NewRouter(
	authService *service.AuthService,
	issuer *auth.TokenIssuer,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("beaura"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Token verifier that bridges to the internal issuer.
	verifier := func(token string) (*middleware.Identity, error) {
		claims, err := issuer.Verify(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Identity{
			ID:       claims.AccountID,
			Username: claims.Username,
			Email:    claims.Email,
			Role:     claims.Role,
		}, nil
	}

	authHandler := NewAuthHandler(authService, logger)
	userHandler := NewUserHandler(authService, logger)

	// Auth endpoints (public)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/google", authHandler.GoogleSignIn)
		r.Post("/refresh", authHandler.RefreshToken)
		r.Post("/verify-email", authHandler.VerifyEmail)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)
		r.Post("/request-verification", authHandler.RequestEmailVerification)
		r.Post("/logout", authHandler.Logout)

		// Authenticated auth endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(verifier))

			r.Post("/change-password", authHandler.ChangePassword)
		})
	})

	// Account endpoints (auth required)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(verifier))

		r.Get("/me", userHandler.GetMe)
		r.Delete("/me", userHandler.DeleteMe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.Get("/", userHandler.ListAccounts)
		})
	})

	return r
}
