package domain

import (
	"time"
)

// DefaultProfilePicture is the avatar assigned to accounts registered
// without a profile image.
const DefaultProfilePicture = "https://res.cloudinary.com/dk5b3j3sh/image/upload/v1626820004/avatars/blank-profile-picture-973460_640"

// Account is the stored identity record backing authentication.
// Username and email are case-folded to lowercase at write time; the
// secret and token fields never leave the service in API responses.
type Account struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`

	Nickname        string `json:"nickname,omitempty"`
	Bio             string `json:"bio,omitempty"`
	ProfilePicture  string `json:"profilePicture"`
	ProfilePublicID string `json:"profilePublicId,omitempty"`

	EmailVerified          bool   `json:"emailVerified"`
	EmailVerificationToken string `json:"-"`

	PasswordResetToken        string     `json:"-"`
	PasswordResetTokenExpires *time.Time `json:"-"`

	CreditBalance int    `json:"creditBalance"`
	Status        string `json:"status"`
	Role          string `json:"role"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TokenPair holds an access and refresh token pair. It is derived on demand
// and never persisted; revocation before natural expiry is not possible in
// this design.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// StatusFree is the subscription status assigned to new accounts.
const StatusFree = "free"
