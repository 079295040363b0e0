package quota

import (
	"time"

	"github.com/dmitrymomot/focusflow/pkg/period"
)

const (
	// DefaultLimit is the monthly AI query allowance for the paid tier.
	DefaultLimit = 300

	// WarningRatio is the usage fraction at which the status flips to warning,
	// giving the UI room to nudge the user before they hit the wall.
	WarningRatio = 0.9
)

// WarningCount returns the usage count at which the warning flag turns on for
// the given limit. With the defaults that is 270 of 300.
func WarningCount(limit int) int {
	return int(float64(limit) * WarningRatio)
}

// Status is the quota snapshot returned to callers and serialized as-is on the
// HTTP boundary.
type Status struct {
	Allowed        bool      `json:"allowed"`
	Used           int       `json:"used"`
	Limit          int       `json:"limit"`
	Remaining      int       `json:"remaining"`
	ResetAt        time.Time `json:"resetAt"`
	IsWarning      bool      `json:"isWarning"`
	IsLimitReached bool      `json:"isLimitReached"`
}

// ComputeStatus builds a Status for the given usage count. It is a pure
// function of its inputs: identical arguments always yield an identical
// snapshot. If a monthly reset is due, the caller must fold it into used
// (treat it as 0) before calling; see period.NeedsReset.
func ComputeStatus(used, limit int, now time.Time) Status {
	remaining := max(0, limit-used)
	limitReached := used >= limit

	return Status{
		Allowed:        !limitReached,
		Used:           used,
		Limit:          limit,
		Remaining:      remaining,
		ResetAt:        period.NextMonthStart(now),
		IsWarning:      used >= WarningCount(limit) && !limitReached,
		IsLimitReached: limitReached,
	}
}
