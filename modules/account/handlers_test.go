package account_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/focusflow/modules/account"
	"github.com/dmitrymomot/focusflow/pkg/authn"
	"github.com/dmitrymomot/focusflow/pkg/billing"
)

// injectIdentity stands in for the real auth middleware in handler tests.
func injectIdentity(identity authn.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(authn.SetIdentity(r.Context(), identity)))
		})
	}
}

// passthrough leaves the request unauthenticated.
func passthrough(next http.Handler) http.Handler { return next }

func newTestAPI(t *testing.T, store *account.MemoryStore, provider *stubProvider, auth func(http.Handler) http.Handler) http.Handler {
	t.Helper()

	svc := account.NewService(store, provider, testCatalog(t))
	return account.NewHandler(svc, slog.New(slog.DiscardHandler)).Router(auth)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetQuotaEndpoint(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("unauthenticated", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, account.NewMemoryStore(), &stubProvider{}, passthrough)
		rec := doRequest(t, api, http.MethodGet, "/quota", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("free tier", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, account.NewMemoryStore(), &stubProvider{}, injectIdentity(identity("user_1")))
		rec := doRequest(t, api, http.MethodGet, "/quota", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "no-subscription", body["reason"])
	})

	t.Run("paid tier", func(t *testing.T) {
		t.Parallel()

		store := account.NewMemoryStore()
		seedPaid(t, store, "user_1", "ctm_1", 3, now, now)
		api := newTestAPI(t, store, &stubProvider{}, injectIdentity(identity("user_1")))

		rec := doRequest(t, api, http.MethodGet, "/quota", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["allowed"])
		assert.Equal(t, float64(3), body["used"])
		assert.Equal(t, float64(10), body["limit"])
		assert.Equal(t, float64(7), body["remaining"])
		assert.Equal(t, false, body["isWarning"])
		assert.Equal(t, false, body["isLimitReached"])
	})
}

func TestConsumeQuotaEndpoint(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("increments and returns the snapshot", func(t *testing.T) {
		t.Parallel()

		store := account.NewMemoryStore()
		seedPaid(t, store, "user_1", "ctm_1", 0, now, now)
		api := newTestAPI(t, store, &stubProvider{}, injectIdentity(identity("user_1")))

		rec := doRequest(t, api, http.MethodPost, "/quota", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(1), body["used"])
	})

	t.Run("limit reached", func(t *testing.T) {
		t.Parallel()

		store := account.NewMemoryStore()
		seedPaid(t, store, "user_1", "ctm_1", 10, now, now)
		api := newTestAPI(t, store, &stubProvider{}, injectIdentity(identity("user_1")))

		rec := doRequest(t, api, http.MethodPost, "/quota", "")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["allowed"])
		assert.Equal(t, true, body["isLimitReached"])
		assert.Equal(t, float64(0), body["remaining"])
	})

	t.Run("missing account", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, account.NewMemoryStore(), &stubProvider{}, injectIdentity(identity("nobody")))
		rec := doRequest(t, api, http.MethodPost, "/quota", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTrialEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("start then start again", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, account.NewMemoryStore(), &stubProvider{}, injectIdentity(identity("user_1")))

		rec := doRequest(t, api, http.MethodPost, "/trial/start", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(14), body["daysRemaining"])

		rec = doRequest(t, api, http.MethodPost, "/trial/start", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "trial already used")
	})

	t.Run("expire while running", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, account.NewMemoryStore(), &stubProvider{}, injectIdentity(identity("user_1")))
		doRequest(t, api, http.MethodPost, "/trial/start", "")

		rec := doRequest(t, api, http.MethodPost, "/trial/expire", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "not expired")
	})

	t.Run("expire without account", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, account.NewMemoryStore(), &stubProvider{}, injectIdentity(identity("nobody")))
		rec := doRequest(t, api, http.MethodPost, "/trial/expire", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("status", func(t *testing.T) {
		t.Parallel()

		api := newTestAPI(t, account.NewMemoryStore(), &stubProvider{}, injectIdentity(identity("user_1")))
		doRequest(t, api, http.MethodPost, "/trial/start", "")

		rec := doRequest(t, api, http.MethodGet, "/trial/status", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["hasUsedTrial"])
		assert.Equal(t, false, body["isExpired"])
		assert.Equal(t, "flow", body["tier"])
		assert.Equal(t, "trialing", body["subscriptionStatus"])
	})
}

func TestCheckoutEndpoint(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	api := newTestAPI(t, account.NewMemoryStore(), provider, injectIdentity(identity("user_1")))

	rec := doRequest(t, api, http.MethodPost, "/checkout", `{"lifetime":true,"successUrl":"https://app.example.com/done"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["url"])
	assert.Equal(t, "pri_flow_lifetime", provider.lastRequest.PriceID)
	assert.Equal(t, "https://app.example.com/done", provider.lastRequest.SuccessURL)
}

func TestPortalEndpoint(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("no billing customer", func(t *testing.T) {
		t.Parallel()

		store := account.NewMemoryStore()
		seedFree(t, store, "user_1", now)
		api := newTestAPI(t, store, &stubProvider{}, injectIdentity(identity("user_1")))

		rec := doRequest(t, api, http.MethodGet, "/portal", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("linked customer", func(t *testing.T) {
		t.Parallel()

		store := account.NewMemoryStore()
		seedPaid(t, store, "user_1", "ctm_1", 0, now, now)
		api := newTestAPI(t, store, &stubProvider{}, injectIdentity(identity("user_1")))

		rec := doRequest(t, api, http.MethodGet, "/portal", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decodeBody(t, rec)["url"])
	})
}

func TestWebhookEndpoint(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()

		provider := &stubProvider{webhookErr: billing.ErrVerificationFailed}
		api := newTestAPI(t, account.NewMemoryStore(), provider, passthrough)

		rec := doRequest(t, api, http.MethodPost, "/webhooks/billing", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown event is acknowledged", func(t *testing.T) {
		t.Parallel()

		provider := &stubProvider{webhook: &billing.Event{Type: billing.EventUnknown, ProviderEvent: "address.updated"}}
		api := newTestAPI(t, account.NewMemoryStore(), provider, passthrough)

		rec := doRequest(t, api, http.MethodPost, "/webhooks/billing", `{}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["received"])
	})

	t.Run("cancellation downgrades the account", func(t *testing.T) {
		t.Parallel()

		store := account.NewMemoryStore()
		seedPaid(t, store, "user_1", "ctm_1", 0, now, now)
		provider := &stubProvider{webhook: &billing.Event{
			Type:       billing.EventSubscriptionCancelled,
			CustomerID: "ctm_1",
		}}
		api := newTestAPI(t, store, provider, passthrough)

		rec := doRequest(t, api, http.MethodPost, "/webhooks/billing", `{}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		acc, err := store.GetByAuthID(t.Context(), "user_1")
		require.NoError(t, err)
		assert.Equal(t, account.TierFree, acc.Tier)
	})
}
