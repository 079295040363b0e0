package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider on top of the official Paddle SDK.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle-backed billing provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

// CreateCheckoutLink creates a hosted checkout transaction in Paddle.
// The internal account ID travels in custom data so the completion webhook can
// be linked back to the account without a provider-side lookup.
func (p *PaddleProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	if req.AccountRef == "" {
		return nil, ErrMissingAccountRef
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	txnReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"account_id": req.AccountRef,
			"lifetime":   req.Lifetime,
		},
	}
	if req.Email != "" {
		txnReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		txnReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	txn, err := p.client.TransactionsClient.CreateTransaction(ctx, txnReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	if txn.Checkout == nil || txn.Checkout.URL == nil || *txn.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       *txn.Checkout.URL,
		SessionID: txn.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour), // Paddle checkout links expire in 24 hours
	}, nil
}

// GetCustomerPortalLink returns a link to Paddle's customer portal.
func (p *PaddleProvider) GetCustomerPortalLink(ctx context.Context, customerID, subscriptionID string) (*PortalLink, error) {
	if customerID == "" {
		return nil, errors.New("customer ID is required")
	}

	sessionReq := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: customerID,
	}
	if subscriptionID != "" {
		sessionReq.SubscriptionIDs = []string{subscriptionID}
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, sessionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle customer portal session: %w", err)
	}

	link := &PortalLink{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	for _, subURL := range session.URLs.Subscriptions {
		if subURL.ID == subscriptionID {
			link.CancelURL = subURL.CancelSubscription
			link.UpdatePaymentURL = subURL.UpdateSubscriptionPaymentMethod
			break
		}
	}

	if link.URL == "" {
		return nil, ErrNoPortalURL
	}
	return link, nil
}

// ParseWebhook verifies the Paddle signature and normalizes the event.
func (p *PaddleProvider) ParseWebhook(r *http.Request) (*Event, error) {
	valid, err := p.verifier.Verify(r)
	if err != nil {
		return nil, errors.Join(ErrVerificationFailed, err)
	}
	if !valid {
		return nil, ErrVerificationFailed
	}

	// The verifier resets the body after reading it for signature computation.
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	return parsePaddlePayload(payload)
}

// parsePaddlePayload maps a verified Paddle webhook body onto a normalized
// Event. Kept separate from signature verification so the mapping is testable
// without crafting signed requests.
func parsePaddlePayload(payload []byte) (*Event, error) {
	var raw struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if raw.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrMalformedPayload)
	}

	event := &Event{
		Type:          mapPaddleEventType(raw.EventType, raw.Data),
		ProviderEvent: raw.EventType,
		Raw:           raw.Data,
	}

	event.CustomerID, _ = raw.Data["customer_id"].(string)
	event.Status, _ = raw.Data["status"].(string)

	id, _ := raw.Data["id"].(string)
	if strings.HasPrefix(raw.EventType, "subscription.") {
		event.SubscriptionID = id
	} else {
		event.TransactionID = id
		event.SubscriptionID, _ = raw.Data["subscription_id"].(string)
	}

	if customData, ok := raw.Data["custom_data"].(map[string]any); ok {
		event.AccountRef, _ = customData["account_id"].(string)
		// Custom data round-trips through JSON, so the flag may come back as
		// either a bool or a string.
		switch v := customData["lifetime"].(type) {
		case bool:
			event.Lifetime = v
		case string:
			event.Lifetime = v == "true"
		}
	}

	return event, nil
}

// mapPaddleEventType translates Paddle event names to normalized types.
// A completed transaction is a first checkout when it originated from the
// hosted checkout page ("web"), and a renewal payment when Paddle created it
// for a recurring billing cycle.
func mapPaddleEventType(providerEvent string, data map[string]any) EventType {
	switch providerEvent {
	case "transaction.completed":
		if origin, _ := data["origin"].(string); origin == "subscription_recurring" {
			return EventPaymentSucceeded
		}
		return EventCheckoutCompleted
	case "transaction.payment_failed":
		return EventPaymentFailed
	case "subscription.canceled":
		return EventSubscriptionCancelled
	case "subscription.updated":
		return EventSubscriptionUpdated
	default:
		return EventUnknown
	}
}
