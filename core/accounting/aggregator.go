// Package accounting projects the payment ledger into dashboard figures. It never mutates anything.
package accounting

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/payment"
)

type (
	InstallmentSummary struct {
		InstallmentNumber int             `json:"installment_number"`
		DueDate           time.Time       `json:"due_date"`
		Collected         decimal.Decimal `json:"collected"`
		Expected          decimal.Decimal `json:"expected"`
		Percentage        decimal.Decimal `json:"percentage"`
	}

	Totals struct {
		TotalPaid   decimal.Decimal `json:"total_paid"`
		TotalFees   decimal.Decimal `json:"total_fees"`
		Outstanding decimal.Decimal `json:"outstanding"`
		Percentage  decimal.Decimal `json:"percentage"`
		Enrolled    int             `json:"enrolled"`
	}

	StudentBalance struct {
		StudentID string          `json:"student_id"`
		Paid      decimal.Decimal `json:"paid"`
		Due       decimal.Decimal `json:"due"`
		Locked    bool            `json:"locked"`
	}

	Batches interface {
		Manage(ctx context.Context, caller core.Caller, id string) (batch.Batch, error)
		QueryEnrollments(ctx context.Context, batchID string) ([]batch.Enrollment, error)
	}

	Payments interface {
		Approved(ctx context.Context, batchID string) ([]payment.Payment, error)
	}

	Locks interface {
		LockedSet(ctx context.Context, batchID string) (map[string]access.LockEntry, error)
	}

	Aggregator struct {
		batches  Batches
		payments Payments
		locks    Locks
	}
)

func NewAggregator(batches Batches, payments Payments, locks Locks) *Aggregator {
	vala.BeginValidation().Validate(
		vala.IsNotNil(batches, "batches"),
		vala.IsNotNil(payments, "payments"),
		vala.IsNotNil(locks, "locks"),
	).CheckAndPanic()

	return &Aggregator{batches: batches, payments: payments, locks: locks}
}

type snapshot struct {
	batch    batch.Batch
	enrolled []batch.Enrollment
	approved []payment.Payment
}

func (agg *Aggregator) load(ctx context.Context, caller core.Caller, batchID string) (snapshot, error) {
	b, err := agg.batches.Manage(ctx, caller, batchID)
	if err != nil {
		return snapshot{}, err
	}
	enrolled, err := agg.batches.QueryEnrollments(ctx, batchID)
	if err != nil {
		return snapshot{}, errors.Wrap(err, "querying enrollments")
	}
	approved, err := agg.payments.Approved(ctx, batchID)
	if err != nil {
		return snapshot{}, errors.Wrap(err, "querying approved payments")
	}
	return snapshot{batch: b, enrolled: enrolled, approved: approved}, nil
}

// InstallmentBreakdown sums approved payments per installment against the expected share of
// every enrolled student.
func (agg *Aggregator) InstallmentBreakdown(ctx context.Context, caller core.Caller, batchID string) ([]InstallmentSummary, error) {
	snap, err := agg.load(ctx, caller, batchID)
	if err != nil {
		return nil, err
	}
	return breakdown(snap.batch.Schedule, len(snap.enrolled), snap.approved), nil
}

func breakdown(fs batch.FeeSchedule, enrolled int, approved []payment.Payment) []InstallmentSummary {
	collected := make(map[int]decimal.Decimal, fs.InstallmentCount)
	for _, p := range approved {
		if p.Status != payment.StatusApproved {
			continue
		}
		collected[p.InstallmentNumber] = collected[p.InstallmentNumber].Add(p.Amount)
	}

	students := decimal.NewFromInt(int64(enrolled))
	summaries := make([]InstallmentSummary, 0, fs.InstallmentCount)
	for n := 1; n <= fs.InstallmentCount; n++ {
		expected := fs.InstallmentAmount(n).Mul(students)
		summaries = append(summaries, InstallmentSummary{
			InstallmentNumber: n,
			DueDate:           fs.DueDate(n),
			Collected:         collected[n],
			Expected:          expected,
			Percentage:        core.Percentage(collected[n], expected),
		})
	}
	return summaries
}

// BatchTotals counts approved payments only.
func (agg *Aggregator) BatchTotals(ctx context.Context, caller core.Caller, batchID string) (Totals, error) {
	snap, err := agg.load(ctx, caller, batchID)
	if err != nil {
		return Totals{}, err
	}
	return totals(snap.batch.Schedule, len(snap.enrolled), snap.approved), nil
}

func totals(fs batch.FeeSchedule, enrolled int, approved []payment.Payment) Totals {
	paid := decimal.Zero
	for _, p := range approved {
		if p.Status == payment.StatusApproved {
			paid = paid.Add(p.Amount)
		}
	}
	fees := fs.TotalFee.Mul(decimal.NewFromInt(int64(enrolled)))
	outstanding := fees.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	return Totals{
		TotalPaid:   paid,
		TotalFees:   fees,
		Outstanding: outstanding,
		Percentage:  core.Percentage(paid, fees),
		Enrolled:    enrolled,
	}
}

// StudentBalances lists what each enrolled student paid and still owes, with their lock state.
func (agg *Aggregator) StudentBalances(ctx context.Context, caller core.Caller, batchID string) ([]StudentBalance, error) {
	snap, err := agg.load(ctx, caller, batchID)
	if err != nil {
		return nil, err
	}
	locked, err := agg.locks.LockedSet(ctx, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "querying locks")
	}

	paid := make(map[string]decimal.Decimal, len(snap.enrolled))
	for _, p := range snap.approved {
		paid[p.StudentID] = paid[p.StudentID].Add(p.Amount)
	}

	balances := make([]StudentBalance, 0, len(snap.enrolled))
	for _, e := range snap.enrolled {
		due := snap.batch.Schedule.TotalFee.Sub(paid[e.StudentID])
		if due.IsNegative() {
			due = decimal.Zero
		}
		_, isLocked := locked[e.StudentID]
		balances = append(balances, StudentBalance{
			StudentID: e.StudentID,
			Paid:      paid[e.StudentID],
			Due:       due,
			Locked:    isLocked,
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].StudentID < balances[j].StudentID })
	return balances, nil
}
