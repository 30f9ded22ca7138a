package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier compares shared registration secrets against their
// stored hashes.
type SecretVerifier interface {
	// Compare checks a plaintext secret against its stored hash.
	// Returns ErrInvalidSecret on mismatch.
	Compare(hashedSecret, secret string) error
}

// BcryptVerifier implements SecretVerifier using bcrypt.
type BcryptVerifier struct{}

// NewBcryptVerifier creates a new BcryptVerifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Compare implements the SecretVerifier interface using bcrypt.
func (v *BcryptVerifier) Compare(hashedSecret, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return nil
}
