// Package tokens generates the random identifiers used by the auth flows.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// NewJTI returns a fresh refresh token identifier.
func NewJTI() string {
	return uuid.NewString()
}

// NewUserID returns a fresh local user identifier.
func NewUserID() string {
	return uuid.NewString()
}

// NewLoginHandle returns "U" followed by the first 16 hex chars of a random UUID.
// The handle is human-opaque and independent from the provider id.
func NewLoginHandle() string {
	return "U" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// GenerateOpaqueToken returns nBytes of randomness as unpadded base64url.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
