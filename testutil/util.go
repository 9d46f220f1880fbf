// Package testutil wires the domain services on a migrated sqlite database for tests.
package testutil

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/accounting"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/payment"
	"github.com/trezcool/feedesk/core/subscription"
	blobsvc "github.com/trezcool/feedesk/services/blob"
	metricsvc "github.com/trezcool/feedesk/services/metrics"
	qrsvc "github.com/trezcool/feedesk/services/qrcode"
	"github.com/trezcool/feedesk/storage/database"
	sqlxrepos "github.com/trezcool/feedesk/storage/database/sqlx"
)

var Admin = core.Caller{ID: "admin", Role: core.RoleAdmin}

func Teacher(id string) core.Caller { return core.Caller{ID: id, Role: core.RoleTeacher} }
func Student(id string) core.Caller { return core.Caller{ID: id, Role: core.RoleStudent} }

// NewConfig returns a TEST configuration backed by sqlite.
func NewConfig() *core.Config {
	conf := &core.Config{
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		AppName:   "Feedesk",
		SecretKey: "test-secret",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Database.Engine = database.EngineSQLite
	conf.Storage.Folder = "feedesk-test"
	conf.Fees.Currency = "INR"
	return conf
}

// PrepareDB opens a fresh, fully migrated sqlite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := NewConfig()
	conf.Database.Path = filepath.Join(t.TempDir(), "feedesk.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	return db
}

func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate, translator
}

// Env is the full service graph over one database.
type Env struct {
	Conf    *core.Config
	DB      *sqlx.DB
	Blobs   core.BlobStore
	Metrics *metricsvc.Prometheus

	SubscriptionRepo subscription.Repository
	BatchRepo        batch.Repository
	PaymentRepo      payment.Repository
	LockRepo         access.Repository

	Subscriptions *subscription.Service
	Batches       *batch.Service
	Access        *access.Controller
	Payments      *payment.Service
	Accounting    *accounting.Aggregator
}

// NewEnv wires every service; blobs defaults to an in-memory store.
func NewEnv(t *testing.T, blobs ...core.BlobStore) *Env {
	t.Helper()

	env := &Env{Conf: NewConfig(), DB: PrepareDB(t)}
	if len(blobs) > 0 {
		env.Blobs = blobs[0]
	} else {
		env.Blobs = blobsvc.NewMemoryStore()
	}
	env.Metrics = metricsvc.NewPrometheus(env.Conf)

	env.SubscriptionRepo = sqlxrepos.NewSubscriptionRepository(env.DB)
	env.BatchRepo = sqlxrepos.NewBatchRepository(env.DB)
	env.PaymentRepo = sqlxrepos.NewPaymentRepository(env.DB)
	env.LockRepo = sqlxrepos.NewLockRepository(env.DB)

	logger := core.NopLogger
	env.Subscriptions = subscription.NewService(
		env.SubscriptionRepo, env.Blobs, qrsvc.NewUPIGenerator(), logger, env.Metrics, env.Conf,
	)
	env.Batches = batch.NewService(env.BatchRepo, env.Subscriptions, logger)
	env.Access = access.NewController(env.LockRepo, env.Batches, env.Subscriptions, logger, env.Metrics)
	env.Payments = payment.NewService(env.PaymentRepo, env.Batches, env.Access, env.Blobs, logger, env.Metrics)
	env.Accounting = accounting.NewAggregator(env.Batches, env.Payments, env.Access)
	return env
}

// Receipt is a small in-memory receipt upload.
func Receipt(name string) core.File {
	content := []byte("receipt:" + name)
	return core.File{
		Name:        name,
		ContentType: "image/png",
		Size:        int64(len(content)),
		Content:     bytes.NewReader(content),
	}
}

func Dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Dec(%q): %v", s, err)
	}
	return d
}

// Fixtures

func (env *Env) CreatePlan(t *testing.T, price string, months, maxBatches int) subscription.Plan {
	t.Helper()
	plan, err := env.Subscriptions.CreatePlan(context.Background(), Admin, subscription.NewPlan{
		Name:           "plan",
		Price:          Dec(t, price),
		DurationMonths: months,
		MaxBatches:     maxBatches,
	})
	if err != nil {
		t.Fatalf("CreatePlan(): %v", err)
	}
	return plan
}

func (env *Env) RegisterTeacher(t *testing.T, id string) subscription.Teacher {
	t.Helper()
	teacher, err := env.Subscriptions.RegisterTeacher(context.Background(), Admin, subscription.NewTeacher{ID: id, Name: id})
	if err != nil {
		t.Fatalf("RegisterTeacher(): %v", err)
	}
	return teacher
}

// ActiveTeacher registers a teacher and verifies a subscription payment on a fresh plan.
func (env *Env) ActiveTeacher(t *testing.T, id string, maxBatches int) subscription.Teacher {
	t.Helper()
	ctx := context.Background()

	env.RegisterTeacher(t, id)
	plan := env.CreatePlan(t, "999", 1, maxBatches)
	p, err := env.Subscriptions.SubmitPayment(ctx, Teacher(id), id, plan.ID, Receipt(id+".png"))
	if err != nil {
		t.Fatalf("ActiveTeacher(): %v", err)
	}
	outcome, err := env.Subscriptions.Verify(ctx, Admin, p.ID)
	if err != nil {
		t.Fatalf("ActiveTeacher(): %v", err)
	}
	return outcome.Teacher
}

// DueDates returns n monthly due dates starting next month.
func DueDates(n int) []time.Time {
	start := time.Date(time.Now().Year(), time.Now().Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, i, 0)
	}
	return dates
}

func (env *Env) CreateBatch(t *testing.T, teacherID, totalFee string, installments int) batch.Batch {
	t.Helper()
	b, err := env.Batches.Create(context.Background(), Teacher(teacherID), batch.NewBatch{
		Name:             "batch",
		TotalFee:         Dec(t, totalFee),
		InstallmentCount: installments,
		DueDates:         DueDates(installments),
	})
	if err != nil {
		t.Fatalf("CreateBatch(): %v", err)
	}
	return b
}

func (env *Env) Enroll(t *testing.T, b batch.Batch, studentIDs ...string) {
	t.Helper()
	for _, id := range studentIDs {
		if _, err := env.Batches.Enroll(context.Background(), Teacher(b.TeacherID), b.ID, id); err != nil {
			t.Fatalf("Enroll(%s): %v", id, err)
		}
	}
}

// Submit submits a payment as the student.
func (env *Env) Submit(t *testing.T, b batch.Batch, studentID string, installment int, amount string) payment.Payment {
	t.Helper()
	p, err := env.Payments.Submit(context.Background(), Student(studentID), payment.NewPayment{
		BatchID:           b.ID,
		StudentID:         studentID,
		InstallmentNumber: installment,
		Amount:            Dec(t, amount),
	}, Receipt(studentID+".png"))
	if err != nil {
		t.Fatalf("Submit(): %v", err)
	}
	return p
}

// Clock pins core.NowFunc and advances it by step on every call. The original clock is restored
// when the test ends.
func Clock(t *testing.T, start time.Time, step time.Duration) {
	t.Helper()
	orig := core.NowFunc
	now := start.UTC()
	core.NowFunc = func() time.Time {
		current := now
		now = now.Add(step)
		return current
	}
	t.Cleanup(func() { core.NowFunc = orig })
}
