package account_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/focusflow/modules/account"
	"github.com/dmitrymomot/focusflow/pkg/period"
)

func TestConsumeQueryConcurrent(t *testing.T) {
	t.Parallel()

	store := account.NewMemoryStore()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	acc := seedPaid(t, store, "user_1", "ctm_1", 0, now, now)

	const (
		limit   = 50
		workers = 200
	)
	monthStart := period.MonthStart(now)

	var granted, rejected atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ConsumeQuery(context.Background(), acc.ID, limit, monthStart, now)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, account.ErrQuotaExceeded):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), granted.Load())
	assert.Equal(t, int64(workers-limit), rejected.Load())

	final, err := store.GetByID(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, limit, final.AIQueriesThisMonth)
}

func TestConsumeQueryFoldsResetIntoIncrement(t *testing.T) {
	t.Parallel()

	store := account.NewMemoryStore()
	december := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	january := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := seedPaid(t, store, "user_1", "ctm_1", 300, december, december)

	used, err := store.ConsumeQuery(context.Background(), acc.ID, 300, period.MonthStart(january), january)
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	final, err := store.GetByID(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, january, final.AIQueriesResetAt)
}

func TestStartTrialIsSingleUse(t *testing.T) {
	t.Parallel()

	store := account.NewMemoryStore()
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	acc := seedFree(t, store, "user_1", now)

	require.NoError(t, store.StartTrial(context.Background(), acc.ID, now, now.AddDate(0, 0, 14)))
	err := store.StartTrial(context.Background(), acc.ID, now, now.AddDate(0, 0, 14))
	assert.ErrorIs(t, err, account.ErrTrialAlreadyUsed)
}

func TestApplyCheckoutNeverClearsLifetime(t *testing.T) {
	t.Parallel()

	store := account.NewMemoryStore()
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	acc := seedFree(t, store, "user_1", now)

	require.NoError(t, store.ApplyCheckout(context.Background(), acc.ID, "ctm_1", "", true, now))
	// A stale non-lifetime checkout redelivery must not downgrade the flag.
	require.NoError(t, store.ApplyCheckout(context.Background(), acc.ID, "ctm_1", "sub_1", false, now.Add(time.Minute)))

	final, err := store.GetByID(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.True(t, final.Lifetime)
}

func TestResetQuotaIfDueIsIdempotent(t *testing.T) {
	t.Parallel()

	store := account.NewMemoryStore()
	december := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	january := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	acc := seedPaid(t, store, "user_1", "ctm_1", 42, december, december)

	monthStart := period.MonthStart(january)
	first, err := store.ResetQuotaIfDue(context.Background(), acc.ID, monthStart, january)
	require.NoError(t, err)
	assert.Equal(t, 0, first.AIQueriesThisMonth)

	second, err := store.ResetQuotaIfDue(context.Background(), acc.ID, monthStart, january.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, second.AIQueriesThisMonth)
	assert.Equal(t, january, second.AIQueriesResetAt)
}
