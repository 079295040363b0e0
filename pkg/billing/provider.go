package billing

import (
	"context"
	"net/http"
	"time"
)

// Provider is the contract this application expects from the external billing
// system. Implementations must verify webhook signatures before parsing; a
// payload that fails verification is never turned into an Event.
type Provider interface {
	// CreateCheckoutLink creates a hosted checkout session for a plan purchase.
	// The billing customer is created lazily by the provider on completion.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// GetCustomerPortalLink returns a pre-authenticated link where the
	// customer can update payment methods, cancel, or change plans.
	GetCustomerPortalLink(ctx context.Context, customerID, subscriptionID string) (*PortalLink, error)

	// ParseWebhook verifies the request signature and returns the normalized
	// event. Returns ErrVerificationFailed on an invalid signature.
	ParseWebhook(r *http.Request) (*Event, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string // provider's price identifier
	AccountRef string // internal account ID, echoed back in webhook custom data
	Email      string // pre-fill billing email if known
	Lifetime   bool   // one-time lifetime purchase instead of a subscription
	SuccessURL string // redirect after successful payment
	CancelURL  string // redirect if customer abandons checkout
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalLink represents a customer portal session.
type PortalLink struct {
	URL              string
	CancelURL        string // direct link to the cancellation flow, when available
	UpdatePaymentURL string
	ExpiresAt        time.Time
}

// EventType is the normalized billing event type. Provider implementations map
// their specific event names onto these; anything unmapped becomes
// EventUnknown, which the webhook endpoint acknowledges without processing so
// new provider events never cause retry storms.
type EventType string

const (
	EventCheckoutCompleted     EventType = "checkout_completed"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventPaymentSucceeded      EventType = "payment_succeeded"
	EventPaymentFailed         EventType = "payment_failed"
	EventUnknown               EventType = "unknown"
)

// Event is a normalized webhook notification from the billing provider.
// Redelivery is expected; consumers must handle every event idempotently.
type Event struct {
	Type           EventType
	ProviderEvent  string         // original provider event name
	CustomerID     string         // provider's customer ID
	SubscriptionID string         // provider's subscription ID, empty for one-time purchases
	TransactionID  string         // provider's transaction ID, for transaction events
	AccountRef     string         // internal account ID from checkout custom data
	Status         string         // provider's subscription status, for subscription events
	Lifetime       bool           // checkout was a one-time lifetime purchase
	Raw            map[string]any // full provider payload for logging and forensics
}
