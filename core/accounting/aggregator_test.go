package accounting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/testutil"
)

func TestAggregator(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	teacher := testutil.Teacher("t1")

	env.ActiveTeacher(t, "t1", 2)
	b := env.CreateBatch(t, "t1", "3000", 3)
	env.Enroll(t, b, "s1", "s2")

	approve := func(student string, installment int, amount string) {
		p := env.Submit(t, b, student, installment, amount)
		_, err := env.Payments.Approve(ctx, teacher, b.ID, p.ID)
		require.NoError(t, err)
	}
	approve("s1", 1, "1000")
	approve("s2", 1, "1000")
	approve("s1", 2, "1000")
	// pending and rejected payments are not counted
	env.Submit(t, b, "s2", 2, "1000")
	rejected := env.Submit(t, b, "s1", 3, "1000")
	_, err := env.Payments.Reject(ctx, teacher, b.ID, rejected.ID)
	require.NoError(t, err)

	_, err = env.Access.ToggleStudentLock(ctx, teacher, b.ID, "s2", "")
	require.NoError(t, err)

	t.Run("installment breakdown", func(t *testing.T) {
		summaries, err := env.Accounting.InstallmentBreakdown(ctx, teacher, b.ID)
		require.NoError(t, err)
		require.Len(t, summaries, 3)

		want := []struct{ collected, expected, pct string }{
			{"2000", "2000", "100"},
			{"1000", "2000", "50"},
			{"0", "2000", "0"},
		}
		for i, w := range want {
			s := summaries[i]
			assert.Equal(t, i+1, s.InstallmentNumber)
			assert.True(t, s.DueDate.Equal(b.Schedule.DueDates[i]))
			assert.True(t, s.Collected.Equal(testutil.Dec(t, w.collected)), "collected[%d] = %s", i, s.Collected)
			assert.True(t, s.Expected.Equal(testutil.Dec(t, w.expected)), "expected[%d] = %s", i, s.Expected)
			assert.True(t, s.Percentage.Equal(testutil.Dec(t, w.pct)), "percentage[%d] = %s", i, s.Percentage)
		}
	})

	t.Run("batch totals", func(t *testing.T) {
		totals, err := env.Accounting.BatchTotals(ctx, testutil.Admin, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, totals.Enrolled)
		assert.True(t, totals.TotalPaid.Equal(testutil.Dec(t, "3000")))
		assert.True(t, totals.TotalFees.Equal(testutil.Dec(t, "6000")))
		assert.True(t, totals.Outstanding.Equal(testutil.Dec(t, "3000")))
		assert.True(t, totals.Percentage.Equal(testutil.Dec(t, "50")))
	})

	t.Run("student balances", func(t *testing.T) {
		balances, err := env.Accounting.StudentBalances(ctx, teacher, b.ID)
		require.NoError(t, err)
		require.Len(t, balances, 2)

		assert.Equal(t, "s1", balances[0].StudentID)
		assert.True(t, balances[0].Paid.Equal(testutil.Dec(t, "2000")))
		assert.True(t, balances[0].Due.Equal(testutil.Dec(t, "1000")))
		assert.False(t, balances[0].Locked)

		assert.Equal(t, "s2", balances[1].StudentID)
		assert.True(t, balances[1].Due.Equal(testutil.Dec(t, "2000")))
		assert.True(t, balances[1].Locked)
	})

	t.Run("permissions", func(t *testing.T) {
		_, err := env.Accounting.BatchTotals(ctx, testutil.Student("s1"), b.ID)
		assert.Equal(t, core.ErrPermissionDenied, err)
		_, err = env.Accounting.InstallmentBreakdown(ctx, teacher, "nope")
		assert.True(t, core.IsNotFound(err))
	})
}

func TestAggregator_noStudents(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.ActiveTeacher(t, "t1", 1)
	b := env.CreateBatch(t, "t1", "1000", 3)

	totals, err := env.Accounting.BatchTotals(ctx, testutil.Teacher("t1"), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, totals.Enrolled)
	assert.True(t, totals.TotalFees.IsZero())
	assert.True(t, totals.Percentage.IsZero())

	summaries, err := env.Accounting.InstallmentBreakdown(ctx, testutil.Teacher("t1"), b.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	for _, s := range summaries {
		assert.True(t, s.Percentage.IsZero())
	}
}
