package billing

import "errors"

var (
	ErrMissingAPIKey        = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")
	ErrInvalidEnvironment   = errors.New("invalid billing provider environment")

	ErrMissingPriceID    = errors.New("price ID is required")
	ErrMissingAccountRef = errors.New("account reference is required")

	ErrVerificationFailed = errors.New("webhook signature verification failed")
	ErrMalformedPayload   = errors.New("malformed webhook payload")

	ErrNoCheckoutURL = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL   = errors.New("no portal URL returned from provider")
)
