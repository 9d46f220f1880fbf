package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/subscription"
	blobsvc "github.com/trezcool/feedesk/services/blob"
	"github.com/trezcool/feedesk/testutil"
)

func TestService_CreatePlan(t *testing.T) {
	blobs := blobsvc.NewMemoryStore()
	env := testutil.NewEnv(t, blobs)
	ctx := context.Background()

	_, err := env.Subscriptions.CreatePlan(ctx, testutil.Teacher("t1"), subscription.NewPlan{Name: "x"})
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = env.Subscriptions.CreatePlan(ctx, testutil.Admin, subscription.NewPlan{
		Name: "Basic", Price: testutil.Dec(t, "499"), DurationMonths: 1, MaxBatches: 0,
	})
	assert.True(t, core.IsValidation(err), "got %v", err)

	plan, err := env.Subscriptions.CreatePlan(ctx, testutil.Admin, subscription.NewPlan{
		Name:           "Pro",
		Price:          testutil.Dec(t, "1499.50"),
		DurationMonths: 6,
		MaxBatches:     subscription.Unlimited,
		AccountHolder:  "Coaching Co",
		UPIID:          "coach@upi",
	})
	require.NoError(t, err)
	require.NotEmpty(t, plan.QRImageURL)

	png, ok := blobs.Get(plan.QRImageURL)
	require.True(t, ok, "QR code not stored")
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	stored, err := env.Subscriptions.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(plan.Price))
	assert.True(t, stored.Unlimited())
	assert.Equal(t, plan.QRImageURL, stored.QRImageURL)
}

func TestService_RegisterTeacher(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	teacher := env.RegisterTeacher(t, "t1")
	assert.Equal(t, subscription.StatusLocked, teacher.Status)
	assert.False(t, teacher.ManualOverride)
	assert.True(t, teacher.Subscription.EndDate.IsZero())

	_, err := env.Subscriptions.RegisterTeacher(ctx, testutil.Admin, subscription.NewTeacher{ID: "t1", Name: "again"})
	assert.True(t, core.IsValidation(err), "got %v", err)

	_, err = env.Subscriptions.RegisterTeacher(ctx, testutil.Teacher("t2"), subscription.NewTeacher{ID: "t2", Name: "me"})
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = env.Subscriptions.GetTeacher(ctx, "nobody")
	assert.True(t, core.IsNotFound(err))
}

func TestService_Verify(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	start := time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)
	testutil.Clock(t, start, 0)

	env.RegisterTeacher(t, "t1")
	plan := env.CreatePlan(t, "999", 3, 2)

	p, err := env.Subscriptions.SubmitPayment(ctx, testutil.Teacher("t1"), "t1", plan.ID, testutil.Receipt("r.png"))
	require.NoError(t, err)
	assert.Equal(t, subscription.PaymentPending, p.Status)
	assert.True(t, p.Amount.Equal(plan.Price))

	outcome, err := env.Subscriptions.Verify(ctx, testutil.Admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.PaymentVerified, outcome.Payment.Status)
	assert.Equal(t, testutil.Admin.ID, outcome.Payment.DecidedBy)
	assert.Equal(t, subscription.StatusActive, outcome.Teacher.Status)
	assert.Equal(t, subscription.StatusActive, outcome.Effective)
	assert.Equal(t, plan.ID, outcome.Teacher.Subscription.PlanID)
	assert.True(t, outcome.Teacher.Subscription.StartDate.Equal(start))
	assert.True(t, outcome.Teacher.Subscription.EndDate.Equal(start.AddDate(0, 3, 0)))

	_, err = env.Subscriptions.Verify(ctx, testutil.Admin, p.ID)
	require.True(t, core.IsInvalidState(err), "got %v", err)
	assert.Equal(t, string(subscription.PaymentVerified), err.(*core.InvalidStateError).Current)

	_, err = env.Subscriptions.Reject(ctx, testutil.Admin, p.ID)
	assert.True(t, core.IsInvalidState(err), "got %v", err)

	_, err = env.Subscriptions.Verify(ctx, testutil.Admin, "nope")
	assert.True(t, core.IsNotFound(err), "got %v", err)
}

func TestService_Reject(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	active := env.ActiveTeacher(t, "t1", 1)
	plan := env.CreatePlan(t, "999", 1, 1)
	p, err := env.Subscriptions.SubmitPayment(ctx, testutil.Teacher("t1"), "t1", plan.ID, testutil.Receipt("renewal.png"))
	require.NoError(t, err)

	outcome, err := env.Subscriptions.Decide(ctx, testutil.Admin, p.ID, subscription.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, subscription.PaymentRejected, outcome.Payment.Status)
	assert.Equal(t, subscription.StatusLocked, outcome.Teacher.Status)
	assert.Equal(t, subscription.StatusLocked, outcome.Effective)
	// the previous window is kept
	assert.True(t, outcome.Teacher.Subscription.EndDate.Equal(active.Subscription.EndDate))

	counts, err := env.Subscriptions.Counts(ctx, testutil.Admin)
	require.NoError(t, err)
	assert.Equal(t, subscription.Counts{Pending: 0, Rejected: 1}, counts)

	_, err = env.Subscriptions.Decide(ctx, testutil.Admin, p.ID, "maybe")
	assert.True(t, core.IsValidation(err))
}

func TestService_OverrideStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	env.RegisterTeacher(t, "t1")
	teacher, err := env.Subscriptions.OverrideStatus(ctx, testutil.Admin, "t1", subscription.StatusActive)
	require.NoError(t, err)
	assert.True(t, teacher.ManualOverride)

	// an override outlives the subscription window
	testutil.Clock(t, time.Now().AddDate(1, 0, 0), 0)
	status, _, err := env.Subscriptions.EffectiveStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, status)

	// and is cleared by the next decision
	plan := env.CreatePlan(t, "100", 1, 1)
	p, err := env.Subscriptions.SubmitPayment(ctx, testutil.Teacher("t1"), "t1", plan.ID, testutil.Receipt("r.png"))
	require.NoError(t, err)
	outcome, err := env.Subscriptions.Reject(ctx, testutil.Admin, p.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Teacher.ManualOverride)
	assert.Equal(t, subscription.StatusLocked, outcome.Effective)

	_, err = env.Subscriptions.OverrideStatus(ctx, testutil.Admin, "t1", "frozen")
	assert.True(t, core.IsValidation(err))
	_, err = env.Subscriptions.OverrideStatus(ctx, testutil.Admin, "nobody", subscription.StatusLocked)
	assert.True(t, core.IsNotFound(err))
	_, err = env.Subscriptions.OverrideStatus(ctx, testutil.Teacher("t1"), "t1", subscription.StatusActive)
	assert.Equal(t, core.ErrPermissionDenied, err)
}

func TestService_LazyExpiry(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	teacher := env.ActiveTeacher(t, "t1", 1)
	status, _, err := env.Subscriptions.EffectiveStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, status)

	testutil.Clock(t, teacher.Subscription.EndDate.Add(time.Second), 0)
	status, stored, err := env.Subscriptions.EffectiveStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusLocked, status)
	// nothing is written on read
	assert.Equal(t, subscription.StatusActive, stored.Status)
}

func TestService_SubmitPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("permissions and validation", func(t *testing.T) {
		env := testutil.NewEnv(t)
		env.RegisterTeacher(t, "t1")
		plan := env.CreatePlan(t, "999", 1, 1)

		_, err := env.Subscriptions.SubmitPayment(ctx, testutil.Teacher("t2"), "t1", plan.ID, testutil.Receipt("r.png"))
		assert.Equal(t, core.ErrPermissionDenied, err)
		_, err = env.Subscriptions.SubmitPayment(ctx, testutil.Teacher("t1"), "t1", "nope", testutil.Receipt("r.png"))
		assert.True(t, core.IsValidation(err))
		_, err = env.Subscriptions.SubmitPayment(ctx, testutil.Teacher("t1"), "t1", plan.ID, core.File{})
		assert.True(t, core.IsValidation(err))
	})

	t.Run("storage failure leaves nothing", func(t *testing.T) {
		env := testutil.NewEnv(t, blobsvc.NewFailingStore(nil))
		env.RegisterTeacher(t, "t1")
		plan := env.CreatePlan(t, "999", 1, 1)

		_, err := env.Subscriptions.SubmitPayment(ctx, testutil.Teacher("t1"), "t1", plan.ID, testutil.Receipt("r.png"))
		var serr *core.StorageError
		require.ErrorAs(t, err, &serr)

		payments, err := env.Subscriptions.QueryPayments(ctx, testutil.Admin, subscription.QueryFilter{})
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("teachers only see their own payments", func(t *testing.T) {
		env := testutil.NewEnv(t)
		env.ActiveTeacher(t, "t1", 1)
		env.ActiveTeacher(t, "t2", 1)

		mine, err := env.Subscriptions.QueryPayments(ctx, testutil.Teacher("t1"), subscription.QueryFilter{TeacherID: "t2"})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "t1", mine[0].TeacherID)

		all, err := env.Subscriptions.QueryPayments(ctx, testutil.Admin, subscription.QueryFilter{Status: subscription.PaymentVerified})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		_, err = env.Subscriptions.QueryPayments(ctx, testutil.Student("s1"), subscription.QueryFilter{})
		assert.Equal(t, core.ErrPermissionDenied, err)
	})
}

func TestService_BatchQuota(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	env.RegisterTeacher(t, "t1")
	plan, err := env.Subscriptions.BatchQuota(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, plan.MaxBatches)

	env.ActiveTeacher(t, "t2", 3)
	assert.NoError(t, env.Subscriptions.CheckQuota(ctx, "t2", 2))
	err = env.Subscriptions.CheckQuota(ctx, "t2", 3)
	var qerr *core.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 3, qerr.MaxBatches)
	assert.Equal(t, 3, qerr.ActiveBatches)
}
