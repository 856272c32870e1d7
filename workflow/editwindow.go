package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
)

// EditPolicy carries the time-based edit rules. Kept as plain data so the
// window check stays a pure function of its inputs.
type EditPolicy struct {
	// FreezeDays is how many days before a month's last calendar day the
	// month's forecast cells lock.
	FreezeDays int
	// ThrottleWindow is the minimum gap between new-key entries for the
	// same (project, manager, type).
	ThrottleWindow time.Duration
	// AllowCommentOnFrozen permits comment-only edits on Won or Abandoned
	// opportunities.
	AllowCommentOnFrozen bool
	// EnforceFreeze turns server-side freeze rejection on. The UI disables
	// frozen cells anyway; this closes the direct-API hole.
	EnforceFreeze bool
	// EnforceThrottle turns the weekly throttle on.
	EnforceThrottle bool
}

// DefaultEditPolicy reads the policy from feature flags.
func DefaultEditPolicy() EditPolicy {
	return EditPolicy{
		FreezeDays:           config.ForecastFreezeDays(),
		ThrottleWindow:       7 * 24 * time.Hour,
		AllowCommentOnFrozen: true,
		EnforceFreeze:        config.ServerFreezeEnforcement(),
		EnforceThrottle:      config.WeeklyThrottleEnabled(),
	}
}

// CalendarYear converts a fiscal year plus calendar month to the calendar
// year the month falls in. The fiscal year runs Apr..Mar, so Jan..Mar of
// fiscal year Y land in calendar year Y+1.
func CalendarYear(fiscalYear int, month int) int {
	if month >= 1 && month <= 3 {
		return fiscalYear + 1
	}
	return fiscalYear
}

// IsEditWindowOpen reports whether a forecast cell for (fiscalYear, month)
// may still be edited at the given instant. The window closes at the start
// of the day FreezeDays before the month's last calendar day, and stays
// closed forever after. Pure function of its inputs.
func IsEditWindowOpen(now time.Time, fiscalYear int, month int, policy EditPolicy) bool {
	if policy.FreezeDays <= 0 {
		return true
	}
	year := CalendarYear(fiscalYear, month)
	firstOfNext := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	lastDay := firstOfNext.AddDate(0, 0, -1)
	freezeStart := time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day()-policy.FreezeDays+1, 0, 0, 0, 0, now.Location())
	return now.Before(freezeStart)
}
