package account

import "context"

// TierMirror pushes the account tier into the identity provider's public
// metadata so web and mobile clients can branch on it without another API
// round trip. The database stays the source of truth; the mirror is a cache
// and every sync is best-effort.
type TierMirror interface {
	SyncTier(ctx context.Context, authID string, tier Tier) error
}

// NoopMirror is used when no identity provider sync is configured.
type NoopMirror struct{}

func (NoopMirror) SyncTier(_ context.Context, _ string, _ Tier) error { return nil }
