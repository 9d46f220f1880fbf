package batch

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
)

func monthly(n int) []time.Time {
	start := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, i, 0)
	}
	return dates
}

func TestNewFeeSchedule(t *testing.T) {
	unordered := monthly(3)
	unordered[1], unordered[2] = unordered[2], unordered[1]
	same := monthly(2)
	same[1] = same[0]

	tests := []struct {
		name      string
		total     decimal.Decimal
		count     int
		dates     []time.Time
		wantField string
	}{
		{name: "zero fee", total: decimal.Zero, count: 1, dates: monthly(1), wantField: "total_fee"},
		{name: "negative fee", total: decimal.NewFromInt(-10), count: 1, dates: monthly(1), wantField: "total_fee"},
		{name: "sub-cent fee", total: decimal.RequireFromString("10.005"), count: 1, dates: monthly(1), wantField: "total_fee"},
		{name: "fee beyond storage", total: decimal.RequireFromString("184467440737095517.16"), count: 1, dates: monthly(1), wantField: "total_fee"},
		{name: "no installments", total: decimal.NewFromInt(100), count: 0, dates: nil, wantField: "installment_count"},
		{name: "missing due dates", total: decimal.NewFromInt(100), count: 3, dates: monthly(2), wantField: "installment_due_dates"},
		{name: "unordered due dates", total: decimal.NewFromInt(100), count: 3, dates: unordered, wantField: "installment_due_dates"},
		{name: "repeated due date", total: decimal.NewFromInt(100), count: 2, dates: same, wantField: "installment_due_dates"},
		{name: "valid", total: decimal.NewFromInt(3000), count: 3, dates: monthly(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFeeSchedule(tt.total, tt.count, tt.dates)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("NewFeeSchedule() unexpected error = %v", err)
				}
				if fs.InstallmentCount != tt.count || !fs.TotalFee.Equal(tt.total) {
					t.Errorf("NewFeeSchedule() = %+v", fs)
				}
				return
			}
			verr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("NewFeeSchedule() error = %v, want *core.ValidationError", err)
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Errorf("NewFeeSchedule() field = %s, want %s", verr.Fields[0].Field, tt.wantField)
			}
		})
	}
}

func TestFeeSchedule_InstallmentAmount(t *testing.T) {
	tests := []struct {
		name  string
		total string
		count int
		want  []string
	}{
		{name: "even split", total: "3000", count: 3, want: []string{"1000", "1000", "1000"}},
		{name: "remainder on last", total: "1000", count: 3, want: []string{"333.33", "333.33", "333.34"}},
		{name: "single installment", total: "499.99", count: 1, want: []string{"499.99"}},
		{name: "cents remainder", total: "0.05", count: 2, want: []string{"0.02", "0.03"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			fs, err := NewFeeSchedule(total, tt.count, monthly(tt.count))
			if err != nil {
				t.Fatalf("NewFeeSchedule() unexpected error = %v", err)
			}

			sum := decimal.Zero
			for i, want := range tt.want {
				got := fs.InstallmentAmount(i + 1)
				if !got.Equal(decimal.RequireFromString(want)) {
					t.Errorf("InstallmentAmount(%d) = %s, want %s", i+1, got, want)
				}
				sum = sum.Add(got)
			}
			if !sum.Equal(total) {
				t.Errorf("installments sum to %s, want %s", sum, total)
			}
			if !fs.InstallmentAmount(0).IsZero() || !fs.InstallmentAmount(tt.count+1).IsZero() {
				t.Error("InstallmentAmount() out of range must be zero")
			}
		})
	}
}

func TestFeeSchedule_DueDate(t *testing.T) {
	dates := monthly(2)
	fs, err := NewFeeSchedule(decimal.NewFromInt(200), 2, dates)
	if err != nil {
		t.Fatalf("NewFeeSchedule() unexpected error = %v", err)
	}
	if !fs.DueDate(2).Equal(dates[1]) {
		t.Errorf("DueDate(2) = %v, want %v", fs.DueDate(2), dates[1])
	}
	if !fs.DueDate(3).IsZero() {
		t.Errorf("DueDate(3) = %v, want zero time", fs.DueDate(3))
	}
}
