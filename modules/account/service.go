package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/focusflow/pkg/authn"
	"github.com/dmitrymomot/focusflow/pkg/billing"
	"github.com/dmitrymomot/focusflow/pkg/email"
	"github.com/dmitrymomot/focusflow/pkg/logger"
	"github.com/dmitrymomot/focusflow/pkg/period"
	"github.com/dmitrymomot/focusflow/pkg/quota"
)

// Service implements the account lifecycle: lazy account creation, the
// single-use trial, billing webhook processing, and the AI usage quota.
// The store is the source of truth; tier mirroring and emails are
// best-effort side effects that never fail the primary operation.
type Service struct {
	store    Store
	provider billing.Provider
	catalog  *Catalog
	mirror   TierMirror
	mailer   email.EmailSender
	log      *slog.Logger
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithTierMirror sets the identity provider metadata sync.
func WithTierMirror(m TierMirror) ServiceOption {
	return func(s *Service) {
		if m == nil {
			panic("account: tier mirror cannot be nil")
		}
		s.mirror = m
	}
}

// WithMailer enables transactional emails for lifecycle transitions.
func WithMailer(m email.EmailSender) ServiceOption {
	return func(s *Service) {
		if m == nil {
			panic("account: mailer cannot be nil")
		}
		s.mailer = m
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log == nil {
			panic("account: logger cannot be nil")
		}
		s.log = log
	}
}

// NewService creates the account service. Store, provider, and catalog are
// required; it panics when any of them is nil.
func NewService(store Store, provider billing.Provider, catalog *Catalog, opts ...ServiceOption) *Service {
	if store == nil {
		panic("account: store is required")
	}
	if provider == nil {
		panic("account: billing provider is required")
	}
	if catalog == nil {
		panic("account: plan catalog is required")
	}

	s := &Service{
		store:    store,
		provider: provider,
		catalog:  catalog,
		mirror:   NoopMirror{},
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAccount returns the account for the authenticated identity, creating
// a free-tier record on first contact. Creation racing another request is
// resolved by re-reading the winner's row.
func (s *Service) EnsureAccount(ctx context.Context, identity authn.Identity, now time.Time) (*Account, error) {
	acc, err := s.store.GetByAuthID(ctx, identity.Subject)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	acc = &Account{
		ID:                 uuid.New(),
		AuthID:             identity.Subject,
		Email:              identity.Email,
		Tier:               TierFree,
		SubscriptionStatus: StatusNone,
		AIQueriesResetAt:   now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return s.store.GetByAuthID(ctx, identity.Subject)
		}
		return nil, err
	}
	return acc, nil
}

// QuotaStatus returns the current AI usage snapshot, applying a due monthly
// reset before reading. Returns ErrNotSubscribed for accounts without paid
// access.
func (s *Service) QuotaStatus(ctx context.Context, identity authn.Identity, now time.Time) (quota.Status, error) {
	acc, err := s.EnsureAccount(ctx, identity, now)
	if err != nil {
		return quota.Status{}, err
	}
	if !acc.HasPaidAccess() {
		return quota.Status{}, ErrNotSubscribed
	}

	acc, err = s.store.ResetQuotaIfDue(ctx, acc.ID, period.MonthStart(now), now)
	if err != nil {
		return quota.Status{}, err
	}
	return quota.ComputeStatus(acc.AIQueriesThisMonth, s.aiLimit(), now), nil
}

// ConsumeQuery atomically spends one AI query and returns the resulting
// snapshot. On ErrQuotaExceeded the returned status reflects the untouched
// counter at the limit, so callers can serve it alongside the rejection.
func (s *Service) ConsumeQuery(ctx context.Context, identity authn.Identity, now time.Time) (quota.Status, error) {
	acc, err := s.store.GetByAuthID(ctx, identity.Subject)
	if err != nil {
		return quota.Status{}, err
	}
	if !acc.HasPaidAccess() {
		return quota.Status{}, ErrNotSubscribed
	}

	limit := s.aiLimit()
	used, err := s.store.ConsumeQuery(ctx, acc.ID, limit, period.MonthStart(now), now)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return quota.ComputeStatus(limit, limit, now), err
		}
		return quota.Status{}, err
	}
	return quota.ComputeStatus(used, limit, now), nil
}

// DenyReason explains a negative access decision.
type DenyReason string

const (
	DenyNoSubscription DenyReason = "no-subscription"
	DenyQuotaExceeded  DenyReason = "quota-exceeded"
)

// Decision is the outcome of the AI access gate.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Quota   *quota.Status // set when the account holds paid access
}

// CanUseAI evaluates the access gate without consuming a query: paid tier
// first, then quota headroom. A missing account record means free tier.
func (s *Service) CanUseAI(ctx context.Context, authID string, now time.Time) (Decision, error) {
	acc, err := s.store.GetByAuthID(ctx, authID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Decision{Reason: DenyNoSubscription}, nil
		}
		return Decision{}, err
	}
	if !acc.HasPaidAccess() {
		return Decision{Reason: DenyNoSubscription}, nil
	}

	acc, err = s.store.ResetQuotaIfDue(ctx, acc.ID, period.MonthStart(now), now)
	if err != nil {
		return Decision{}, err
	}

	status := quota.ComputeStatus(acc.AIQueriesThisMonth, s.aiLimit(), now)
	if status.IsLimitReached {
		return Decision{Reason: DenyQuotaExceeded, Quota: &status}, nil
	}
	return Decision{Allowed: true, Quota: &status}, nil
}

// StartTrial begins the single-use trial for the identity's account. Returns
// ErrAlreadyPremium for accounts that already hold paid access and
// ErrTrialAlreadyUsed when a trial was ever started before.
func (s *Service) StartTrial(ctx context.Context, identity authn.Identity, now time.Time) (*Account, error) {
	acc, err := s.EnsureAccount(ctx, identity, now)
	if err != nil {
		return nil, err
	}
	if acc.Lifetime || (acc.HasPaidAccess() && acc.SubscriptionStatus != StatusTrialing) {
		return nil, ErrAlreadyPremium
	}
	if acc.HasUsedTrial() {
		return nil, ErrTrialAlreadyUsed
	}

	endsAt := now.AddDate(0, 0, s.catalog.TrialDays())
	if err := s.store.StartTrial(ctx, acc.ID, now, endsAt); err != nil {
		return nil, err
	}

	acc, err = s.store.GetByID(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	s.syncTier(ctx, acc.AuthID, acc.Tier)
	s.sendEmail(ctx, acc.Email, "Your Flow trial has started",
		"<p>Your "+strconv.Itoa(s.catalog.TrialDays())+"-day Flow trial is active. Enjoy unlimited focus sessions and AI-assisted planning.</p>",
		"trial-started")
	return acc, nil
}

// ExpireTrial downgrades the identity's account when its trial has run out.
// Returns ErrTrialNotExpired while the trial is still running or when no
// trial is in progress.
func (s *Service) ExpireTrial(ctx context.Context, identity authn.Identity, now time.Time) error {
	acc, err := s.store.GetByAuthID(ctx, identity.Subject)
	if err != nil {
		return err
	}

	if err := s.store.ExpireTrial(ctx, acc.ID, now); err != nil {
		return err
	}

	s.syncTier(ctx, acc.AuthID, TierFree)
	s.sendEmail(ctx, acc.Email, "Your Flow trial has ended",
		"<p>Your trial is over. Upgrade to Flow to keep AI-assisted planning and unlimited focus sessions.</p>",
		"trial-ended")
	return nil
}

// TrialInfo is the trial snapshot returned on the HTTP boundary.
type TrialInfo struct {
	HasUsedTrial       bool               `json:"hasUsedTrial"`
	IsExpired          bool               `json:"isExpired"`
	TrialEndsAt        *time.Time         `json:"trialEndsAt"`
	DaysRemaining      int                `json:"daysRemaining"`
	Tier               Tier               `json:"tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
}

// TrialStatus reports where the identity's account stands with its trial.
func (s *Service) TrialStatus(ctx context.Context, identity authn.Identity, now time.Time) (TrialInfo, error) {
	acc, err := s.EnsureAccount(ctx, identity, now)
	if err != nil {
		return TrialInfo{}, err
	}

	return TrialInfo{
		HasUsedTrial:       acc.HasUsedTrial(),
		IsExpired:          acc.SubscriptionStatus == StatusTrialing && acc.IsTrialExpired(now),
		TrialEndsAt:        acc.TrialEndsAt,
		DaysRemaining:      acc.TrialDaysRemaining(now),
		Tier:               acc.Tier,
		SubscriptionStatus: acc.SubscriptionStatus,
	}, nil
}

// CreateCheckout opens a hosted checkout session for the paid plan.
func (s *Service) CreateCheckout(ctx context.Context, identity authn.Identity, lifetime bool, successURL, cancelURL string, now time.Time) (*billing.CheckoutLink, error) {
	acc, err := s.EnsureAccount(ctx, identity, now)
	if err != nil {
		return nil, err
	}
	if acc.Lifetime {
		return nil, ErrAlreadyPremium
	}

	plan, err := s.catalog.Plan(TierFlow)
	if err != nil {
		return nil, err
	}
	priceID := plan.PriceID
	if lifetime {
		priceID = plan.LifetimePriceID
	}

	return s.provider.CreateCheckoutLink(ctx, billing.CheckoutRequest{
		PriceID:    priceID,
		AccountRef: acc.ID.String(),
		Email:      acc.Email,
		Lifetime:   lifetime,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
}

// PortalLink returns a pre-authenticated billing portal session for accounts
// with a linked billing customer.
func (s *Service) PortalLink(ctx context.Context, identity authn.Identity) (*billing.PortalLink, error) {
	acc, err := s.store.GetByAuthID(ctx, identity.Subject)
	if err != nil {
		return nil, err
	}
	if acc.BillingCustomerID == "" {
		return nil, ErrNoBillingCustomer
	}
	return s.provider.GetCustomerPortalLink(ctx, acc.BillingCustomerID, acc.BillingSubscriptionID)
}

// ParseWebhook verifies and normalizes an incoming billing webhook request.
func (s *Service) ParseWebhook(r *http.Request) (*billing.Event, error) {
	return s.provider.ParseWebhook(r)
}

// ProcessWebhookEvent applies a verified billing event to the account it
// concerns. Unknown events and events for unknown accounts are acknowledged
// without processing so the provider never retries them. Returning an error
// signals a transient failure the provider should redeliver.
func (s *Service) ProcessWebhookEvent(ctx context.Context, event *billing.Event, now time.Time) error {
	log := s.log.With(logger.EventType(string(event.Type)), slog.String("provider_event", event.ProviderEvent))

	switch event.Type {
	case billing.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, log, event, now)
	case billing.EventSubscriptionCancelled:
		return s.handleSubscriptionCancelled(ctx, log, event, now)
	case billing.EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, log, event, now)
	case billing.EventPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, log, event, now)
	case billing.EventPaymentFailed:
		return s.handlePaymentFailed(ctx, log, event, now)
	default:
		log.InfoContext(ctx, "ignoring unhandled billing event")
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, log *slog.Logger, event *billing.Event, now time.Time) error {
	accountID, err := uuid.Parse(event.AccountRef)
	if err != nil {
		log.WarnContext(ctx, "checkout event without usable account reference",
			slog.String("account_ref", event.AccountRef))
		return nil
	}

	if err := s.store.ApplyCheckout(ctx, accountID, event.CustomerID, event.SubscriptionID, event.Lifetime, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WarnContext(ctx, "checkout event for unknown account", logger.AccountID(accountID))
			return nil
		}
		return err
	}

	acc, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "checkout applied", logger.AccountID(accountID), slog.Bool("lifetime", event.Lifetime))
	s.syncTier(ctx, acc.AuthID, TierFlow)
	return nil
}

func (s *Service) handleSubscriptionCancelled(ctx context.Context, log *slog.Logger, event *billing.Event, now time.Time) error {
	acc, err := s.store.GetByBillingCustomerID(ctx, event.CustomerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WarnContext(ctx, "cancellation for unknown billing customer",
				slog.String("customer_id", event.CustomerID))
			return nil
		}
		return err
	}
	if acc.Lifetime {
		log.InfoContext(ctx, "ignoring cancellation for lifetime account", logger.AccountID(acc.ID))
		return nil
	}

	if err := s.store.CancelSubscription(ctx, event.CustomerID, now); err != nil {
		return err
	}

	log.InfoContext(ctx, "subscription cancelled", logger.AccountID(acc.ID))
	s.syncTier(ctx, acc.AuthID, TierFree)
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, log *slog.Logger, event *billing.Event, now time.Time) error {
	acc, err := s.store.GetByBillingCustomerID(ctx, event.CustomerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WarnContext(ctx, "subscription update for unknown billing customer",
				slog.String("customer_id", event.CustomerID))
			return nil
		}
		return err
	}
	if acc.Lifetime {
		return nil
	}

	status := StatusPastDue
	if event.Status == "active" || event.Status == "trialing" {
		status = StatusActive
	}
	if err := s.store.SetSubscriptionStatus(ctx, event.CustomerID, status, event.SubscriptionID, now); err != nil {
		return err
	}

	log.InfoContext(ctx, "subscription status updated",
		logger.AccountID(acc.ID), slog.String("status", string(status)))
	return nil
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, log *slog.Logger, event *billing.Event, now time.Time) error {
	if event.SubscriptionID == "" {
		log.InfoContext(ctx, "payment without subscription, checkout flow owns it")
		return nil
	}

	acc, err := s.store.GetByBillingCustomerID(ctx, event.CustomerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WarnContext(ctx, "payment for unknown billing customer",
				slog.String("customer_id", event.CustomerID))
			return nil
		}
		return err
	}

	if err := s.store.RecordPayment(ctx, event.CustomerID, now); err != nil {
		return err
	}

	log.InfoContext(ctx, "renewal payment recorded", logger.AccountID(acc.ID))
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, log *slog.Logger, event *billing.Event, now time.Time) error {
	acc, err := s.store.GetByBillingCustomerID(ctx, event.CustomerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WarnContext(ctx, "failed payment for unknown billing customer",
				slog.String("customer_id", event.CustomerID))
			return nil
		}
		return err
	}
	if acc.Lifetime {
		return nil
	}

	if err := s.store.MarkPastDue(ctx, event.CustomerID, now); err != nil {
		return err
	}

	log.InfoContext(ctx, "payment failed, account marked past due", logger.AccountID(acc.ID))
	s.sendEmail(ctx, acc.Email, "Payment failed for your Flow subscription",
		"<p>We could not charge your payment method. Update it in the billing portal to keep your Flow access.</p>",
		"payment-failed")
	return nil
}

// aiLimit returns the monthly AI query allowance for the paid tier, falling
// back to the application default when the catalog has no explicit limit.
func (s *Service) aiLimit() int {
	if limit := s.catalog.AIQueryLimit(TierFlow); limit > 0 {
		return limit
	}
	return quota.DefaultLimit
}

// syncTier mirrors the tier into the identity provider. Failures are logged
// and swallowed; the database remains authoritative.
func (s *Service) syncTier(ctx context.Context, authID string, tier Tier) {
	if err := s.mirror.SyncTier(ctx, authID, tier); err != nil {
		s.log.WarnContext(ctx, "failed to sync tier to identity provider",
			slog.String("auth_id", authID), slog.String("tier", string(tier)), logger.Error(err))
	}
}

// sendEmail sends a transactional email when a mailer is configured.
// Failures are logged and swallowed.
func (s *Service) sendEmail(ctx context.Context, to, subject, bodyHTML, tag string) {
	if s.mailer == nil || to == "" {
		return
	}
	if err := s.mailer.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  subject,
		BodyHTML: bodyHTML,
		Tag:      tag,
	}); err != nil {
		s.log.WarnContext(ctx, "failed to send transactional email",
			slog.String("tag", tag), logger.Error(err))
	}
}
