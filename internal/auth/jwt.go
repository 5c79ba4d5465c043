package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity attributes embedded in both access and refresh
// tokens: account id, username, email, and role, plus the registered
// issued-at/expiry claims. Both token kinds carry the full set so a refresh
// can re-mint a pair without a password round trip.
type Claims struct {
	AccountID string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies the access/refresh token pair. Tokens are
// self-contained HS256 JWTs; there is no jti tracking, so individual tokens
// cannot be revoked before expiry.
type TokenIssuer struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewTokenIssuer creates a token issuer with the given signing secret and
// expiry horizons.
func NewTokenIssuer(secret string, accessExpiry, refreshExpiry time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// Issue signs an access/refresh pair from the same claim set with
// independent expiry horizons.
func (i *TokenIssuer) Issue(accountID, username, email, role string) (accessToken, refreshToken string, err error) {
	accessToken, err = i.sign(accountID, username, email, role, i.accessExpiry)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err = i.sign(accountID, username, email, role, i.refreshExpiry)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}

// Verify parses and validates a token, returning its claims. An expired
// token and a tampered token both fail here; callers that need to
// distinguish must inspect the expiry claim themselves.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

func (i *TokenIssuer) sign(accountID, username, email, role string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		AccountID: accountID,
		Username:  username,
		Email:     email,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			Issuer:    "beaura-api",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}
