package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists accounts. Every mutation that enforces a lifecycle rule is a
// single conditional statement, so the rule holds under concurrent writers
// without application-side locking:
//
//   - StartTrial only fires when no trial was ever started
//   - ExpireTrial only fires when a running trial is actually past its end
//   - CancelSubscription and MarkPastDue never touch lifetime accounts
//   - ConsumeQuery folds a due monthly reset into the increment and never
//     pushes usage past the limit
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByAuthID(ctx context.Context, authID string) (*Account, error)
	GetByBillingCustomerID(ctx context.Context, customerID string) (*Account, error)
	Create(ctx context.Context, acc *Account) error

	// StartTrial flips a fresh account into its trial. Returns
	// ErrTrialAlreadyUsed when a trial was ever started before.
	StartTrial(ctx context.Context, id uuid.UUID, startedAt, endsAt time.Time) error

	// ExpireTrial downgrades a trialing account whose trial end has passed.
	// Returns ErrTrialNotExpired when the account is not in that state.
	ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) error

	// ApplyCheckout grants paid access after a completed purchase, links the
	// billing identifiers, and resets the usage counter for a clean start.
	// Idempotent: replaying the same checkout converges on the same row, and
	// the lifetime flag only ever turns on.
	ApplyCheckout(ctx context.Context, id uuid.UUID, customerID, subscriptionID string, lifetime bool, now time.Time) error

	// CancelSubscription downgrades the account behind a billing customer.
	// Lifetime accounts are skipped by the statement itself.
	CancelSubscription(ctx context.Context, customerID string, now time.Time) error

	// SetSubscriptionStatus records the provider's view of the subscription.
	SetSubscriptionStatus(ctx context.Context, customerID string, status SubscriptionStatus, subscriptionID string, now time.Time) error

	// MarkPastDue flags a failed renewal payment. Lifetime accounts are
	// skipped by the statement itself.
	MarkPastDue(ctx context.Context, customerID string, now time.Time) error

	// RecordPayment confirms a successful renewal: status back to active and
	// a fresh usage period.
	RecordPayment(ctx context.Context, customerID string, now time.Time) error

	// ResetQuotaIfDue zeroes the usage counter when the stored period started
	// before monthStart, then returns the current row either way.
	ResetQuotaIfDue(ctx context.Context, id uuid.UUID, monthStart, now time.Time) (*Account, error)

	// ConsumeQuery atomically checks the limit and increments usage, applying
	// a due monthly reset in the same statement. Returns the post-increment
	// count, or ErrQuotaExceeded when the limit is already reached.
	ConsumeQuery(ctx context.Context, id uuid.UUID, limit int, monthStart, now time.Time) (int, error)
}
