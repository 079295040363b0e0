package authn_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/focusflow/pkg/authn"
)

const testKey = "test-signing-key-with-enough-bytes"

func newVerifier(t *testing.T) *authn.Verifier {
	t.Helper()
	v, err := authn.NewVerifier([]byte(testKey))
	require.NoError(t, err)
	return v
}

func TestNewVerifierRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := authn.NewVerifier(nil)
	assert.ErrorIs(t, err, authn.ErrMissingSigningKey)
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	token, err := v.Sign(authn.Identity{
		Subject:   "user_123",
		Email:     "user@example.com",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user_123", identity.Subject)
	assert.Equal(t, "user@example.com", identity.Email)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	token, err := v.Sign(authn.Identity{
		Subject:   "user_123",
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, authn.ErrExpiredToken)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	token, err := v.Sign(authn.Identity{Subject: "user_123"})
	require.NoError(t, err)

	other, err := authn.NewVerifier([]byte("another-key-entirely-different"))
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, authn.ErrInvalidSignature)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT","alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user_123"}`))
	token := header + "." + payload + "."

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, authn.ErrInvalidToken)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	token, err := v.Sign(authn.Identity{Email: "user@example.com"})
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, authn.ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	for _, token := range []string{"", "a.b", "a.b.c.d", "!!!.???.###"} {
		_, err := v.Verify(token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	var gotSubject string
	handler := authn.Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authn.IdentityFromContext(r.Context())
		require.True(t, ok)
		gotSubject = identity.Subject
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		token, err := v.Sign(authn.Identity{Subject: "user_123"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user_123", gotSubject)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "unauthorized"))
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
