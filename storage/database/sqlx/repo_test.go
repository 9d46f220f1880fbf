package sqlxrepos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/payment"
	"github.com/trezcool/feedesk/core/subscription"
	"github.com/trezcool/feedesk/testutil"
)

func pendingPayment(t *testing.T, b batch.Batch, student string, installment int) payment.Payment {
	return payment.Payment{
		ID:                uuid.New().String(),
		BatchID:           b.ID,
		StudentID:         student,
		InstallmentNumber: installment,
		Amount:            testutil.Dec(t, "1234.56"),
		Status:            payment.StatusPending,
		ReceiptURL:        "mem://receipts/r",
		SubmittedAt:       core.Now(),
	}
}

func TestPaymentRepository(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.ActiveTeacher(t, "t1", 1)
	b := env.CreateBatch(t, "t1", "3000", 3)
	env.Enroll(t, b, "s1")

	p, err := env.PaymentRepo.CreatePayment(ctx, pendingPayment(t, b, "s1", 1))
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(testutil.Dec(t, "1234.56")), "amount = %s", p.Amount)
	assert.Empty(t, p.Feedback)
	assert.Nil(t, p.VerifiedAt)

	t.Run("one pending per installment", func(t *testing.T) {
		_, err := env.PaymentRepo.CreatePayment(ctx, pendingPayment(t, b, "s1", 1))
		assert.Equal(t, payment.ErrDuplicatePending, err)
	})

	t.Run("unenrolled student", func(t *testing.T) {
		_, err := env.PaymentRepo.CreatePayment(ctx, pendingPayment(t, b, "s9", 1))
		assert.Error(t, err)
	})

	t.Run("conditional transition", func(t *testing.T) {
		at := core.Now()
		approved, err := env.PaymentRepo.ApplyTransition(ctx, payment.Transition{
			PaymentID: p.ID, BatchID: b.ID, To: payment.StatusApproved, VerifiedBy: "t1", VerifiedAt: at,
		})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusApproved, approved.Status)
		require.NotNil(t, approved.VerifiedAt)
		assert.True(t, approved.VerifiedAt.Equal(at))

		_, err = env.PaymentRepo.ApplyTransition(ctx, payment.Transition{
			PaymentID: p.ID, BatchID: b.ID, To: payment.StatusRejected, VerifiedBy: "t1", VerifiedAt: at,
		})
		var serr *core.InvalidStateError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, string(payment.StatusApproved), serr.Current)

		_, err = env.PaymentRepo.ApplyTransition(ctx, payment.Transition{
			PaymentID: "nope", BatchID: b.ID, To: payment.StatusRejected, VerifiedAt: at,
		})
		assert.Equal(t, payment.ErrNotFound, err)

		// the installment is free again once decided
		_, err = env.PaymentRepo.CreatePayment(ctx, pendingPayment(t, b, "s1", 1))
		assert.NoError(t, err)
	})

	t.Run("query and count", func(t *testing.T) {
		_, err := env.PaymentRepo.CreatePayment(ctx, pendingPayment(t, b, "s1", 2))
		require.NoError(t, err)

		n, err := env.PaymentRepo.CountPayments(ctx, payment.QueryFilter{BatchID: b.ID, Status: payment.StatusPending})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		byInstallment, err := env.PaymentRepo.QueryPayments(ctx,
			payment.QueryFilter{BatchID: b.ID},
			core.DBOrdering{Field: "installment_number", Ascending: false},
		)
		require.NoError(t, err)
		require.Len(t, byInstallment, 3)
		assert.Equal(t, 2, byInstallment[0].InstallmentNumber)

		// unknown orderings fall back to submission order
		_, err = env.PaymentRepo.QueryPayments(ctx, payment.QueryFilter{BatchID: b.ID}, core.DBOrdering{Field: "1; DROP TABLE payments"})
		assert.NoError(t, err)
	})
}

func TestLockRepository(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.ActiveTeacher(t, "t1", 1)
	b := env.CreateBatch(t, "t1", "3000", 3)
	env.Enroll(t, b, "s1", "s2")

	entry := access.LockEntry{BatchID: b.ID, StudentID: "s1", LockedAt: core.Now(), LockedBy: "t1"}

	_, found, err := env.LockRepo.GetLock(ctx, b.ID, "s1")
	require.NoError(t, err)
	assert.False(t, found)

	locked, err := env.LockRepo.ToggleLock(ctx, entry)
	require.NoError(t, err)
	assert.True(t, locked)
	stored, found, err := env.LockRepo.GetLock(ctx, b.ID, "s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.LockedAt.Equal(entry.LockedAt))

	locked, err = env.LockRepo.ToggleLock(ctx, entry)
	require.NoError(t, err)
	assert.False(t, locked)

	later := entry
	later.LockedAt = entry.LockedAt.Add(time.Hour)
	_, err = env.LockRepo.Lock(ctx, entry)
	require.NoError(t, err)
	kept, err := env.LockRepo.Lock(ctx, later)
	require.NoError(t, err)
	assert.True(t, kept.LockedAt.Equal(entry.LockedAt))

	_, err = env.LockRepo.Lock(ctx, access.LockEntry{BatchID: b.ID, StudentID: "s2", LockedAt: later.LockedAt})
	require.NoError(t, err)
	entries, err := env.LockRepo.QueryLocks(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].StudentID)

	require.NoError(t, env.LockRepo.Unlock(ctx, b.ID, "s1"))
	require.NoError(t, env.LockRepo.Unlock(ctx, b.ID, "s1"))
	entries, err = env.LockRepo.QueryLocks(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLockRepository_ToggleLock_concurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.ActiveTeacher(t, "t1", 1)
	b := env.CreateBatch(t, "t1", "3000", 3)
	env.Enroll(t, b, "s1")

	_, err := env.LockRepo.ToggleLock(ctx, access.LockEntry{BatchID: b.ID, StudentID: "s9", LockedAt: core.Now()})
	assert.Equal(t, batch.ErrEnrollmentNotFound, err)

	const toggles = 7
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		locks   int
		unlocks int
		errs    []error
	)
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locked, err := env.LockRepo.ToggleLock(ctx, access.LockEntry{BatchID: b.ID, StudentID: "s1", LockedAt: core.Now(), LockedBy: "t1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case locked:
				locks++
			default:
				unlocks++
			}
		}()
	}
	wg.Wait()

	// toggles alternate, so an odd number of them leaves the student locked
	require.Empty(t, errs)
	assert.Equal(t, toggles/2+1, locks)
	assert.Equal(t, toggles/2, unlocks)
	_, found, err := env.LockRepo.GetLock(ctx, b.ID, "s1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestBatchRepository_CreateBatch_quota(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.ActiveTeacher(t, "t1", 1)

	schedule, err := batch.NewFeeSchedule(testutil.Dec(t, "100"), 2, testutil.DueDates(2))
	require.NoError(t, err)
	newBatch := func() batch.Batch {
		return batch.Batch{ID: uuid.New().String(), TeacherID: "t1", Name: "b", Schedule: schedule, IsActive: true, CreatedAt: core.Now()}
	}

	b, err := env.BatchRepo.CreateBatch(ctx, newBatch(), 1)
	require.NoError(t, err)
	require.Len(t, b.Schedule.DueDates, 2)

	_, err = env.BatchRepo.CreateBatch(ctx, newBatch(), 1)
	assert.Equal(t, batch.ErrQuotaReached, err)
	_, err = env.BatchRepo.CreateBatch(ctx, newBatch(), subscription.Unlimited)
	assert.NoError(t, err)

	n, err := env.BatchRepo.CountActiveBatches(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSubscriptionRepository_ApplyTransition(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.RegisterTeacher(t, "t1")
	plan := env.CreatePlan(t, "999.99", 1, 1)

	p, err := env.SubscriptionRepo.CreatePayment(ctx, subscription.Payment{
		ID:          uuid.New().String(),
		TeacherID:   "t1",
		PlanID:      plan.ID,
		Amount:      plan.Price,
		ReceiptURL:  "mem://r",
		Status:      subscription.PaymentPending,
		SubmittedAt: core.Now(),
	})
	require.NoError(t, err)

	now := core.Now()
	tr := subscription.Transition{
		PaymentID:     p.ID,
		To:            subscription.PaymentVerified,
		DecidedBy:     "admin",
		DecidedAt:     now,
		TeacherStatus: subscription.StatusActive,
		Window:        &subscription.Subscription{PlanID: plan.ID, StartDate: now, EndDate: subscription.EndDate(now, 1)},
	}
	decided, teacher, err := env.SubscriptionRepo.ApplyTransition(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, subscription.PaymentVerified, decided.Status)
	assert.Equal(t, subscription.StatusActive, teacher.Status)
	assert.Equal(t, subscription.PaymentVerified, teacher.Subscription.Status)
	assert.True(t, teacher.Subscription.EndDate.Equal(tr.Window.EndDate))

	_, _, err = env.SubscriptionRepo.ApplyTransition(ctx, tr)
	assert.True(t, core.IsInvalidState(err), "got %v", err)

	n, err := env.SubscriptionRepo.CountPayments(ctx, subscription.PaymentPending)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
