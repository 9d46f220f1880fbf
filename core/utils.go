package core

import (
	"strings"
	"time"
)

var NowFunc = time.Now // mockable

// Now returns the current UTC time truncated to microseconds (the precision both SQL engines keep).
func Now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}
