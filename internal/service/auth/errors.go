package auth

import "errors"

// Token validation and registration failures. The API layer maps all of
// these to 401 without exposing which one occurred.
var (
	ErrInvalidToken  = errors.New("invalid authentication token")
	ErrExpiredToken  = errors.New("authentication token has expired")
	ErrMissingToken  = errors.New("authentication token is missing")
	ErrInvalidSecret = errors.New("invalid registration secret")
)
