// Package email sends transactional email through Postmark, with a dev sender
// that logs instead of sending for local environments. Email here is always a
// best-effort side effect: callers log delivery failures and move on.
package email
