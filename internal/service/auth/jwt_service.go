// Package auth provides token-based authentication for the worker and
// admin surfaces. Workers exchange a shared registration secret for a
// bearer token carrying their opaque worker identity; operators do the
// same with the admin secret.
package auth

import (
	"context"
	"time"
)

// Role distinguishes what a token is allowed to do.
type Role string

const (
	// RoleWorker tokens may call the job protocol endpoints.
	RoleWorker Role = "worker"

	// RoleAdmin tokens may additionally ingest cards and reset jobs.
	RoleAdmin Role = "admin"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT for the given subject and role.
	// For workers the subject is the opaque worker identity.
	// Returns the token string or an error if token generation fails.
	GenerateToken(ctx context.Context, subject string, role Role) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation
	// fails (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the custom claims structure for the JWT tokens.
// It extends standard JWT registered claims with application-specific fields.
type Claims struct {
	// Subject is the opaque identity the token was issued for.
	Subject string `json:"sub,omitempty"`

	// Role is the capability level of the token.
	Role Role `json:"role,omitempty"`

	// Standard registered JWT claims
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
