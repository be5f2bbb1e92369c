package token

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

const (
	// PlaceholderCertificate is the value shipped in sample configuration.
	// A builder holding it is treated as unconfigured.
	PlaceholderCertificate = "YOUR_APP_CERTIFICATE_HERE"

	// DefaultTTL is the validity of a token when none is configured.
	DefaultTTL = time.Hour

	devVersion = "dev1"
	keyInfo    = "rtcsession dev token"
)

// Claims is the payload of a dev token.
type Claims struct {
	AppID     string `json:"app_id"`
	Channel   string `json:"channel"`
	UID       uint32 `json:"uid"`
	Role      Role   `json:"role"`
	ExpiresAt int64  `json:"expires_at"`
}

// Expiry returns the expiry time of the claims.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// DevBuilder signs tokens with the application certificate.
//
// The token layout is "dev1.<payload>.<signature>" with both parts base64url
// encoded. The signing key is derived from the certificate with HKDF-SHA256
// and the signature is a keyed BLAKE2b-256 MAC over "dev1.<payload>".
type DevBuilder struct {
	AppID       string
	Certificate string
	TTL         time.Duration
	Role        Role

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewDevBuilder creates a builder issuing publisher tokens valid for
// DefaultTTL.
func NewDevBuilder(appID, certificate string) *DevBuilder {
	return &DevBuilder{
		AppID:       appID,
		Certificate: certificate,
		TTL:         DefaultTTL,
		Role:        RolePublisher,
	}
}

// IsConfigured reports whether the builder holds a real certificate.
func (b *DevBuilder) IsConfigured() bool {
	return b.Certificate != "" && b.Certificate != PlaceholderCertificate
}

// Generate implements Provider.
func (b *DevBuilder) Generate(ctx context.Context, channelID string, uid uint32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, _, err := b.Build(channelID, uid, b.Role)
	return tok, err
}

// Build signs a token for channelID, uid and role.
func (b *DevBuilder) Build(channelID string, uid uint32, role Role) (string, Claims, error) {
	if !b.IsConfigured() {
		return "", Claims{}, ErrNotConfigured
	}
	if channelID == "" {
		return "", Claims{}, ErrEmptyChannel
	}
	if role == 0 {
		role = RolePublisher
	}
	ttl := b.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	claims := Claims{
		AppID:     b.AppID,
		Channel:   channelID,
		UID:       uid,
		Role:      role,
		ExpiresAt: b.now().Add(ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("encode claims: %w", err)
	}

	signed := devVersion + "." + base64.RawURLEncoding.EncodeToString(payload)
	sig, err := b.sign(signed)
	if err != nil {
		return "", Claims{}, err
	}
	tok := signed + "." + base64.RawURLEncoding.EncodeToString(sig)

	logrus.WithFields(logrus.Fields{
		"function":   "DevBuilder.Build",
		"channel_id": channelID,
		"uid":        uid,
		"role":       role.String(),
		"expires_at": claims.Expiry(),
		"token":      Inspect(tok).Preview,
	}).Debug("Dev token issued")

	return tok, claims, nil
}

// Verify checks the signature and expiry of tok and returns its claims.
func (b *DevBuilder) Verify(tok string) (Claims, error) {
	if !b.IsConfigured() {
		return Claims{}, ErrNotConfigured
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 || parts[0] != devVersion {
		return Claims{}, ErrMalformed
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	want, err := b.sign(parts[0] + "." + parts[1])
	if err != nil {
		return Claims{}, err
	}
	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return Claims{}, ErrBadSignature
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if !b.now().Before(claims.Expiry()) {
		return claims, ErrExpired
	}
	return claims, nil
}

func (b *DevBuilder) sign(data string) ([]byte, error) {
	key := make([]byte, blake2b.Size256)
	kdf := hkdf.New(sha256.New, []byte(b.Certificate), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	mac, err := blake2b.New256(key)
	if err != nil {
		return nil, fmt.Errorf("create mac: %w", err)
	}
	mac.Write([]byte(data))
	return mac.Sum(nil), nil
}

func (b *DevBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
