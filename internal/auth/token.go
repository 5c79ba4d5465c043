package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// opaqueTokenBytes is the entropy of verification and reset tokens.
const opaqueTokenBytes = 16

// GenerateOpaqueToken returns a random hex-encoded token used as a
// single-use capability for email verification and password reset links.
// The token carries no embedded structure.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
