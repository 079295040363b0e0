// Package billing abstracts the external payment provider behind a small
// interface: hosted checkout links, customer portal links, and webhook
// verification with event normalization. The rest of the application only sees
// normalized Event values, never provider-specific payloads, so swapping
// Paddle for another provider touches this package alone.
package billing
