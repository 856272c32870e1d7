package config

import (
	"os"
	"strconv"
	"strings"
)

// ServerFreezeEnforcement gates server-side rejection of forecast edits inside
// the month-end freeze window. The UI disables the cells either way; with this
// on, the API refuses them too.
//
// Set via env:
// - FORECAST_FREEZE_ENFORCED=true (default true)
func ServerFreezeEnforcement() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("FORECAST_FREEZE_ENFORCED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ForecastFreezeDays is how many days before month-end a month's forecast
// cells lock. Historical builds disagreed between 1 and 2; default is 2.
//
// Set via env:
// - FORECAST_FREEZE_DAYS=2
func ForecastFreezeDays() int {
	v := strings.TrimSpace(os.Getenv("FORECAST_FREEZE_DAYS"))
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 2
	}
	return n
}

// WeeklyThrottleEnabled gates the one-new-entry-per-week rule for managers.
//
// Set via env:
// - WEEKLY_THROTTLE_ENABLED=true (default true)
func WeeklyThrottleEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("WEEKLY_THROTTLE_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
