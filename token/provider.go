// Package token produces the access tokens a media engine presents when
// joining a channel.
//
// Two providers are available. DevBuilder signs tokens locally with the
// application certificate; it exists for development and for the token
// server itself. HTTPProvider asks a token server for a token, which is the
// only arrangement where the certificate never leaves trusted hosts.
//
// An empty token is valid for channels of projects that do not require
// authentication, so callers treat a provider failure as "join without a
// token" rather than as a fatal error.
package token

import (
	"context"
	"fmt"
)

// Provider produces a token for joining channelID as uid.
type Provider interface {
	Generate(ctx context.Context, channelID string, uid uint32) (string, error)
	IsConfigured() bool
}

// Role is the privilege encoded in a token.
type Role int

const (
	// RolePublisher may publish and subscribe.
	RolePublisher Role = 1
	// RoleSubscriber may only subscribe.
	RoleSubscriber Role = 2
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Static is a Provider returning a fixed token. An empty Static is an
// unconfigured provider.
type Static string

// Generate returns the fixed token.
func (s Static) Generate(ctx context.Context, channelID string, uid uint32) (string, error) {
	return string(s), nil
}

// IsConfigured reports whether the token is non-empty.
func (s Static) IsConfigured() bool {
	return s != ""
}
