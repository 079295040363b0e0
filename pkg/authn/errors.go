package authn

import "errors"

var (
	ErrMissingSigningKey = errors.New("signing key is required")
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrInvalidSignature  = errors.New("invalid token signature")
)
