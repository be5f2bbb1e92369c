package token

import "errors"

// Sentinel errors for token construction and verification.
var (
	// ErrNotConfigured indicates a builder without a usable certificate.
	ErrNotConfigured = errors.New("token builder not configured")

	// ErrEmptyChannel indicates a token request without a channel.
	ErrEmptyChannel = errors.New("channel must not be empty")

	// ErrMalformed indicates a token that cannot be parsed.
	ErrMalformed = errors.New("malformed token")

	// ErrBadSignature indicates a token signed with another certificate.
	ErrBadSignature = errors.New("token signature mismatch")

	// ErrExpired indicates a token past its expiry time.
	ErrExpired = errors.New("token expired")

	// ErrRejected indicates a token server refused the request.
	ErrRejected = errors.New("token request rejected")
)
