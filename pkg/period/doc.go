// Package period provides pure UTC calendar-month arithmetic for usage
// accounting. Quota counters reset on the 1st of each month regardless of when
// an account was created, so all window math is calendar-based rather than a
// rolling 30-day window.
package period
