package authn

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config carries the secret shared with the identity provider.
type Config struct {
	SigningKey string `env:"AUTH_SIGNING_KEY,required"`
}

// Identity is the verified claim set of a session token.
type Identity struct {
	Subject   string `json:"sub"`           // identity provider's user ID
	Email     string `json:"email"`         // billing email, may be empty
	ExpiresAt int64  `json:"exp,omitempty"` // Unix seconds
	IssuedAt  int64  `json:"iat,omitempty"` // Unix seconds
}

// Verifier validates HS256 session tokens (RFC 7519 compact form).
// The signing key lives only in memory and must match the identity provider's
// token template secret.
type Verifier struct {
	signingKey []byte
}

// NewVerifier creates a token verifier. The key should be at least 32 bytes
// for adequate HMAC-SHA256 security.
func NewVerifier(signingKey []byte) (*Verifier, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}
	return &Verifier{signingKey: signingKey}, nil
}

// Verify checks the token signature and temporal claims and returns the
// verified identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, ErrInvalidToken
	}

	var header struct {
		Algorithm string `json:"alg"`
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Identity{}, ErrInvalidToken
	}
	// Reject any algorithm other than the one we mint with, including "none".
	if header.Algorithm != "HS256" {
		return Identity{}, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	expected := v.sign(parts[0] + "." + parts[1])
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if !hmac.Equal(expected, signature) {
		return Identity{}, ErrInvalidSignature
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	var identity Identity
	if err := json.Unmarshal(payloadJSON, &identity); err != nil {
		return Identity{}, ErrInvalidToken
	}
	if identity.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if identity.ExpiresAt > 0 && time.Now().Unix() > identity.ExpiresAt {
		return Identity{}, ErrExpiredToken
	}

	return identity, nil
}

// Sign mints a token for the given identity. Used by tests and local tooling;
// in production the identity provider mints tokens.
func (v *Verifier) Sign(identity Identity) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"typ": "JWT", "alg": "HS256"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	signature := base64.RawURLEncoding.EncodeToString(v.sign(signingInput))

	return signingInput + "." + signature, nil
}

func (v *Verifier) sign(input string) []byte {
	h := hmac.New(sha256.New, v.signingKey)
	h.Write([]byte(input))
	return h.Sum(nil)
}
