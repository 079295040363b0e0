// Package account owns the billing-side user record: the free and paid
// tiers, the single-use trial, billing webhook processing, and the monthly
// AI query quota.
//
// The design leans on the database for correctness. Every lifecycle rule
// (trial single-use, lifetime immunity, the quota limit) is enforced by a
// conditional single-statement update, so concurrent requests and webhook
// redeliveries converge without application-side locking. Identity provider
// metadata and transactional emails are best-effort mirrors of that state
// and never fail the primary operation.
//
// Usage:
//
//	store := account.NewPGStore(pool)
//	svc := account.NewService(store, provider, catalog,
//		account.WithMailer(mailer),
//		account.WithLogger(log),
//	)
//	handler := account.NewHandler(svc, log)
//	mux.Mount("/", handler.Router(authn.Middleware(verifier)))
package account
