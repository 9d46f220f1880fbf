package batch

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
)

// FeeSchedule is the fixed fee plan of a batch: a total split into ordered installments.
type FeeSchedule struct {
	TotalFee         decimal.Decimal `json:"total_fee"`
	InstallmentCount int             `json:"installment_count"`
	DueDates         []time.Time     `json:"installment_due_dates"`
}

// NewFeeSchedule validates and builds a FeeSchedule.
func NewFeeSchedule(totalFee decimal.Decimal, installmentCount int, dueDates []time.Time) (FeeSchedule, error) {
	if !totalFee.IsPositive() || !core.HasMoneyPrecision(totalFee) {
		return FeeSchedule{}, core.NewFieldError("total_fee", "total_fee must be a positive amount with at most 2 decimal places")
	}
	if !core.FitsMinor(totalFee) {
		return FeeSchedule{}, core.NewFieldError("total_fee", "total_fee is too large")
	}
	if installmentCount < 1 {
		return FeeSchedule{}, core.NewFieldError("installment_count", "installment_count must be at least 1")
	}
	if len(dueDates) != installmentCount {
		return FeeSchedule{}, core.NewFieldError("installment_due_dates", "one due date is required per installment")
	}
	dates := make([]time.Time, len(dueDates))
	for i, d := range dueDates {
		dates[i] = d.UTC()
		if i > 0 && !dates[i].After(dates[i-1]) {
			return FeeSchedule{}, core.NewFieldError("installment_due_dates", "due dates must be in ascending order")
		}
	}
	return FeeSchedule{TotalFee: totalFee, InstallmentCount: installmentCount, DueDates: dates}, nil
}

// ValidInstallment reports whether n is in [1, InstallmentCount].
func (fs FeeSchedule) ValidInstallment(n int) bool {
	return n >= 1 && n <= fs.InstallmentCount
}

// InstallmentAmount is the share of installment n. Shares are truncated to cents and the last
// installment takes the remainder, so all shares sum to TotalFee.
func (fs FeeSchedule) InstallmentAmount(n int) decimal.Decimal {
	if !fs.ValidInstallment(n) {
		return decimal.Zero
	}
	count := decimal.NewFromInt(int64(fs.InstallmentCount))
	share := fs.TotalFee.Div(count).Truncate(core.MoneyPlaces)
	if n < fs.InstallmentCount {
		return share
	}
	return fs.TotalFee.Sub(share.Mul(count.Sub(decimal.NewFromInt(1))))
}

// DueDate returns the due date of installment n, or the zero time when n is out of range.
func (fs FeeSchedule) DueDate(n int) time.Time {
	if !fs.ValidInstallment(n) {
		return time.Time{}
	}
	return fs.DueDates[n-1]
}
