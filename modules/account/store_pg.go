package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/focusflow/pkg/pg"
)

// PGStore is the PostgreSQL-backed Store. All lifecycle rules are enforced by
// conditional single-statement updates; row-level locking inside the database
// serializes concurrent writers on the same account.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed account store.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const accountColumns = `id, auth_id, email, tier, subscription_status, is_lifetime,
	trial_started_at, trial_ends_at,
	COALESCE(billing_customer_id, ''), COALESCE(billing_subscription_id, ''),
	ai_queries_this_month, ai_queries_reset_at, created_at, updated_at`

func (s *PGStore) scanAccount(row interface{ Scan(dest ...any) error }) (*Account, error) {
	var acc Account
	err := row.Scan(
		&acc.ID, &acc.AuthID, &acc.Email, &acc.Tier, &acc.SubscriptionStatus, &acc.Lifetime,
		&acc.TrialStartedAt, &acc.TrialEndsAt,
		&acc.BillingCustomerID, &acc.BillingSubscriptionID,
		&acc.AIQueriesThisMonth, &acc.AIQueriesResetAt, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrFailedToGetAccount, err)
	}
	return &acc, nil
}

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return s.scanAccount(s.db.QueryRow(ctx, query, id))
}

func (s *PGStore) GetByAuthID(ctx context.Context, authID string) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE auth_id = $1`, accountColumns)
	return s.scanAccount(s.db.QueryRow(ctx, query, authID))
}

func (s *PGStore) GetByBillingCustomerID(ctx context.Context, customerID string) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE billing_customer_id = $1`, accountColumns)
	return s.scanAccount(s.db.QueryRow(ctx, query, customerID))
}

func (s *PGStore) Create(ctx context.Context, acc *Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (
			id, auth_id, email, tier, subscription_status, is_lifetime,
			trial_started_at, trial_ends_at,
			billing_customer_id, billing_subscription_id,
			ai_queries_this_month, ai_queries_reset_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $14)`,
		acc.ID, acc.AuthID, acc.Email, acc.Tier, acc.SubscriptionStatus, acc.Lifetime,
		acc.TrialStartedAt, acc.TrialEndsAt,
		acc.BillingCustomerID, acc.BillingSubscriptionID,
		acc.AIQueriesThisMonth, acc.AIQueriesResetAt, acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return errors.Join(ErrFailedToCreateAccount, err)
	}
	return nil
}

func (s *PGStore) StartTrial(ctx context.Context, id uuid.UUID, startedAt, endsAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET tier = $2, subscription_status = $3,
		    trial_started_at = $4, trial_ends_at = $5, updated_at = $4
		WHERE id = $1 AND trial_started_at IS NULL`,
		id, TierFlow, StatusTrialing, startedAt, endsAt,
	)
	if err != nil {
		return errors.Join(ErrFailedToUpdateAccount, err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id, ErrTrialAlreadyUsed)
	}
	return nil
}

func (s *PGStore) ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET tier = $2, subscription_status = $3, updated_at = $4
		WHERE id = $1
		  AND subscription_status = $5
		  AND trial_ends_at IS NOT NULL
		  AND trial_ends_at < $4`,
		id, TierFree, StatusCancelled, now, StatusTrialing,
	)
	if err != nil {
		return errors.Join(ErrFailedToUpdateAccount, err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id, ErrTrialNotExpired)
	}
	return nil
}

func (s *PGStore) ApplyCheckout(ctx context.Context, id uuid.UUID, customerID, subscriptionID string, lifetime bool, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET tier = $2, subscription_status = $3, is_lifetime = is_lifetime OR $4,
		    billing_customer_id = NULLIF($5, ''),
		    billing_subscription_id = NULLIF($6, ''),
		    ai_queries_this_month = 0, ai_queries_reset_at = $7, updated_at = $7
		WHERE id = $1`,
		id, TierFlow, StatusActive, lifetime, customerID, subscriptionID, now,
	)
	if err != nil {
		return errors.Join(ErrFailedToUpdateAccount, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CancelSubscription(ctx context.Context, customerID string, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET tier = $2, subscription_status = $3, billing_subscription_id = NULL, updated_at = $4
		WHERE billing_customer_id = $1 AND NOT is_lifetime`,
		customerID, TierFree, StatusCancelled, now,
	)
	if err != nil {
		return errors.Join(ErrFailedToUpdateAccount, err)
	}
	return nil
}

func (s *PGStore) SetSubscriptionStatus(ctx context.Context, customerID string, status SubscriptionStatus, subscriptionID string, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET subscription_status = $2,
		    billing_subscription_id = COALESCE(NULLIF($3, ''), billing_subscription_id),
		    updated_at = $4
		WHERE billing_customer_id = $1`,
		customerID, status, subscriptionID, now,
	)
	if err != nil {
		return errors.Join(ErrFailedToUpdateAccount, err)
	}
	return nil
}

func (s *PGStore) MarkPastDue(ctx context.Context, customerID string, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET subscription_status = $2, updated_at = $3
		WHERE billing_customer_id = $1 AND NOT is_lifetime`,
		customerID, StatusPastDue, now,
	)
	if err != nil {
		return errors.Join(ErrFailedToUpdateAccount, err)
	}
	return nil
}

func (s *PGStore) RecordPayment(ctx context.Context, customerID string, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET subscription_status = $2,
		    ai_queries_this_month = 0, ai_queries_reset_at = $3, updated_at = $3
		WHERE billing_customer_id = $1`,
		customerID, StatusActive, now,
	)
	if err != nil {
		return errors.Join(ErrFailedToUpdateAccount, err)
	}
	return nil
}

func (s *PGStore) ResetQuotaIfDue(ctx context.Context, id uuid.UUID, monthStart, now time.Time) (*Account, error) {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET ai_queries_this_month = 0, ai_queries_reset_at = $3, updated_at = $3
		WHERE id = $1 AND ai_queries_reset_at < $2`,
		id, monthStart, now,
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToUpdateAccount, err)
	}
	return s.GetByID(ctx, id)
}

// ConsumeQuery performs the limit check and the increment in one statement.
// The CASE expressions fold a due monthly reset into the same write: usage
// from a previous period counts as zero for both the guard and the new value.
func (s *PGStore) ConsumeQuery(ctx context.Context, id uuid.UUID, limit int, monthStart, now time.Time) (int, error) {
	var used int
	err := s.db.QueryRow(ctx, `
		UPDATE accounts
		SET ai_queries_this_month = CASE
		        WHEN ai_queries_reset_at < $2 THEN 1
		        ELSE ai_queries_this_month + 1
		    END,
		    ai_queries_reset_at = CASE
		        WHEN ai_queries_reset_at < $2 THEN $3
		        ELSE ai_queries_reset_at
		    END,
		    updated_at = $3
		WHERE id = $1
		  AND (CASE WHEN ai_queries_reset_at < $2 THEN 0 ELSE ai_queries_this_month END) < $4
		RETURNING ai_queries_this_month`,
		id, monthStart, now, limit,
	).Scan(&used)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return 0, s.explainMiss(ctx, id, ErrQuotaExceeded)
		}
		return 0, errors.Join(ErrFailedToUpdateAccount, err)
	}
	return used, nil
}

// explainMiss distinguishes a conditional update that matched no rows: either
// the account does not exist, or it exists and the guard rejected the write.
func (s *PGStore) explainMiss(ctx context.Context, id uuid.UUID, guardErr error) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Join(ErrFailedToGetAccount, err)
	}
	if !exists {
		return ErrNotFound
	}
	return guardErr
}
