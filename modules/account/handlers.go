package account

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/focusflow/pkg/authn"
	"github.com/dmitrymomot/focusflow/pkg/logger"
)

// Handler exposes the account service over HTTP.
type Handler struct {
	svc   *Service
	log   *slog.Logger
	clock func() time.Time
}

// NewHandler creates the account HTTP handler.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if svc == nil {
		panic("account: service is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, log: log, clock: func() time.Time { return time.Now().UTC() }}
}

// Router mounts all account routes. The auth middleware wraps every route
// except the billing webhook, which authenticates by signature instead.
func (h *Handler) Router(auth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/quota", h.getQuota)
		r.Post("/quota", h.consumeQuota)
		r.Post("/trial/start", h.startTrial)
		r.Post("/trial/expire", h.expireTrial)
		r.Get("/trial/status", h.trialStatus)
		r.Post("/checkout", h.createCheckout)
		r.Get("/portal", h.portalLink)
	})

	r.Post("/webhooks/billing", h.billingWebhook)

	return r
}

func (h *Handler) getQuota(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	status, err := h.svc.QuotaStatus(r.Context(), identity, h.clock())
	if err != nil {
		if errors.Is(err, ErrNotSubscribed) {
			writeErrorReason(w, http.StatusForbidden, "paid subscription required", DenyNoSubscription)
			return
		}
		h.internalError(w, r, "failed to load quota status", err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) consumeQuota(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	status, err := h.svc.ConsumeQuery(r.Context(), identity, h.clock())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, status)
	case errors.Is(err, ErrQuotaExceeded):
		// The counter is untouched; serve the snapshot so clients can render
		// the limit state without a second request.
		writeJSON(w, http.StatusTooManyRequests, status)
	case errors.Is(err, ErrNotSubscribed):
		writeErrorReason(w, http.StatusForbidden, "paid subscription required", DenyNoSubscription)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	default:
		h.internalError(w, r, "failed to consume AI query", err)
	}
}

func (h *Handler) startTrial(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := h.clock()
	acc, err := h.svc.StartTrial(r.Context(), identity, now)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"trialEndsAt":   acc.TrialEndsAt,
			"daysRemaining": acc.TrialDaysRemaining(now),
		})
	case errors.Is(err, ErrTrialAlreadyUsed):
		writeError(w, http.StatusBadRequest, "trial already used")
	case errors.Is(err, ErrAlreadyPremium):
		writeError(w, http.StatusBadRequest, "account already has paid access")
	default:
		h.internalError(w, r, "failed to start trial", err)
	}
}

func (h *Handler) expireTrial(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err := h.svc.ExpireTrial(r.Context(), identity, h.clock())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, ErrTrialNotExpired):
		writeError(w, http.StatusBadRequest, "trial is not expired")
	default:
		h.internalError(w, r, "failed to expire trial", err)
	}
}

func (h *Handler) trialStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	info, err := h.svc.TrialStatus(r.Context(), identity, h.clock())
	if err != nil {
		h.internalError(w, r, "failed to load trial status", err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Lifetime   bool   `json:"lifetime"`
		SuccessURL string `json:"successUrl"`
		CancelURL  string `json:"cancelUrl"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	link, err := h.svc.CreateCheckout(r.Context(), identity, req.Lifetime, req.SuccessURL, req.CancelURL, h.clock())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"url":       link.URL,
			"sessionId": link.SessionID,
			"expiresAt": link.ExpiresAt,
		})
	case errors.Is(err, ErrAlreadyPremium):
		writeError(w, http.StatusBadRequest, "account already has paid access")
	default:
		h.internalError(w, r, "failed to create checkout session", err)
	}
}

func (h *Handler) portalLink(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	link, err := h.svc.PortalLink(r.Context(), identity)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"url":              link.URL,
			"cancelUrl":        link.CancelURL,
			"updatePaymentUrl": link.UpdatePaymentURL,
		})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, ErrNoBillingCustomer):
		writeError(w, http.StatusBadRequest, "no billing customer linked to account")
	default:
		h.internalError(w, r, "failed to create portal session", err)
	}
}

func (h *Handler) billingWebhook(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.ParseWebhook(r)
	if err != nil {
		h.log.WarnContext(r.Context(), "rejected billing webhook", logger.Error(err))
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}

	if err := h.svc.ProcessWebhookEvent(r.Context(), event, h.clock()); err != nil {
		// A 5xx tells the provider to redeliver later.
		h.internalError(w, r, "failed to process billing event", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log.ErrorContext(r.Context(), msg, logger.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
