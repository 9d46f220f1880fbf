package subscription

import (
	"time"

	"github.com/trezcool/feedesk/core"
)

// Effective is the status an access check must use: a manual override wins;
// otherwise an active teacher whose subscription ended before `now` is locked.
func Effective(t Teacher, now time.Time) Status {
	if t.ManualOverride {
		return t.Status
	}
	if t.Status == StatusActive && !t.Subscription.EndDate.IsZero() && t.Subscription.EndDate.Before(now) {
		return StatusLocked
	}
	if t.Status == "" {
		return StatusLocked
	}
	return t.Status
}

// EndDate is the end of a subscription window of `months` starting at `start`.
func EndDate(start time.Time, months int) time.Time {
	return start.AddDate(0, months, 0)
}

// CheckQuota fails with *core.QuotaExceededError when `active` batches already use up the plan.
func CheckQuota(plan Plan, active int) error {
	if plan.Unlimited() {
		return nil
	}
	if active >= plan.MaxBatches {
		return core.NewQuotaExceededError(plan.MaxBatches, active)
	}
	return nil
}
