// ABOUTME: Host shared-secret generation and verification
// ABOUTME: Random URL-safe secrets, only the bcrypt hash is persisted

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hostSecretBytes is the entropy in a generated host secret.
const hostSecretBytes = 32

// GenerateHostSecret returns a fresh random secret and its bcrypt hash.
// The plaintext is shown to the operator once; only the hash is stored.
func GenerateHostSecret() (secret, hash string, err error) {
	raw := make([]byte, hostSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generating secret: %w", err)
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing secret: %w", err)
	}
	return secret, string(hashed), nil
}

// VerifyHostSecret reports whether secret matches the stored hash.
func VerifyHostSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
