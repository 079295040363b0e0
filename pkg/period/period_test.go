package period_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/focusflow/pkg/period"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMonthStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid month",
			now:  ts("2025-03-15T13:45:12Z"),
			want: ts("2025-03-01T00:00:00Z"),
		},
		{
			name: "already at boundary",
			now:  ts("2025-03-01T00:00:00Z"),
			want: ts("2025-03-01T00:00:00Z"),
		},
		{
			name: "last instant of month",
			now:  ts("2025-01-31T23:59:59Z"),
			want: ts("2025-01-01T00:00:00Z"),
		},
		{
			name: "non-UTC input is normalized",
			now:  time.Date(2025, 7, 1, 1, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
			want: ts("2025-06-01T00:00:00Z"), // 01:30 CEST is still June 30 in UTC
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, period.MonthStart(tt.now))
		})
	}
}

func TestNextMonthStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "regular month",
			now:  ts("2025-03-15T13:45:12Z"),
			want: ts("2025-04-01T00:00:00Z"),
		},
		{
			name: "december rolls into next year",
			now:  ts("2025-12-31T23:59:59Z"),
			want: ts("2026-01-01T00:00:00Z"),
		},
		{
			name: "february non-leap year",
			now:  ts("2025-02-10T00:00:00Z"),
			want: ts("2025-03-01T00:00:00Z"),
		},
		{
			name: "february leap year",
			now:  ts("2024-02-29T12:00:00Z"),
			want: ts("2024-03-01T00:00:00Z"),
		},
		{
			name: "january into leap february",
			now:  ts("2024-01-31T00:00:00Z"),
			want: ts("2024-02-01T00:00:00Z"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, period.NextMonthStart(tt.now))
		})
	}
}

func TestNeedsReset(t *testing.T) {
	t.Parallel()

	now := ts("2025-02-03T10:00:00Z")

	tests := []struct {
		name        string
		lastResetAt *time.Time
		want        bool
	}{
		{
			name:        "nil last reset always needs reset",
			lastResetAt: nil,
			want:        true,
		},
		{
			name:        "previous month",
			lastResetAt: ptr(ts("2025-01-15T00:00:00Z")),
			want:        true,
		},
		{
			name:        "last instant of previous month",
			lastResetAt: ptr(ts("2025-01-31T23:59:59Z")),
			want:        true,
		},
		{
			name:        "exactly at month boundary",
			lastResetAt: ptr(ts("2025-02-01T00:00:00Z")),
			want:        false,
		},
		{
			name:        "within current month",
			lastResetAt: ptr(ts("2025-02-02T09:00:00Z")),
			want:        false,
		},
		{
			name:        "in the future",
			lastResetAt: ptr(ts("2025-02-20T00:00:00Z")),
			want:        false,
		},
		{
			name:        "same month previous year",
			lastResetAt: ptr(ts("2024-02-03T10:00:00Z")),
			want:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, period.NeedsReset(tt.lastResetAt, now))
		})
	}
}

func TestNeedsResetLeapFebruary(t *testing.T) {
	t.Parallel()

	// Feb 29 exists in 2024; a counter reset then is stale on Mar 1.
	last := ptr(ts("2024-02-29T23:59:59Z"))
	assert.False(t, period.NeedsReset(last, ts("2024-02-29T23:59:59Z")))
	assert.True(t, period.NeedsReset(last, ts("2024-03-01T00:00:00Z")))
}

func ptr(t time.Time) *time.Time { return &t }
