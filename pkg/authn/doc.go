// Package authn verifies caller identity on the HTTP boundary. The external
// identity provider mints HS256 session tokens with a shared secret; this
// package validates them and exposes the verified subject (the provider's user
// ID) plus email through the request context. No business logic runs before
// this check: a request without a valid identity is rejected with 401.
package authn
