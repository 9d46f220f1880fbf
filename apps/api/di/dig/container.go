package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/feedesk/apps/api/echo"
	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/accounting"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/payment"
	"github.com/trezcool/feedesk/core/subscription"
	blobsvc "github.com/trezcool/feedesk/services/blob"
	logsvc "github.com/trezcool/feedesk/services/logger"
	metricsvc "github.com/trezcool/feedesk/services/metrics"
	qrsvc "github.com/trezcool/feedesk/services/qrcode"
	"github.com/trezcool/feedesk/storage/database"
	sqlxrepos "github.com/trezcool/feedesk/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

// newBlobStore keeps files in memory when no cloudinary account is configured.
func newBlobStore(conf *core.Config, logger core.Logger) core.BlobStore {
	if conf.Storage.CloudinaryURL == "" {
		logger.Warn("no cloudinary URL configured: files are kept in memory")
		return blobsvc.NewMemoryStore()
	}
	store, err := blobsvc.NewCloudinaryStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up blob store: %v", err), err)
	}
	return store
}

func newMetrics(p *metricsvc.Prometheus) core.Metrics {
	return p
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// the domain services consume each other through narrow interfaces

func asTeacherGate(svc *subscription.Service) batch.TeacherGate { return svc }
func asAccessTeachers(svc *subscription.Service) access.Teachers { return svc }
func asAccessBatches(svc *batch.Service) access.Batches { return svc }
func asPaymentBatches(svc *batch.Service) payment.Batches { return svc }
func asAccountingBatches(svc *batch.Service) accounting.Batches { return svc }
func asLockEvaluator(ctrl *access.Controller) payment.LockEvaluator { return ctrl }
func asAccountingLocks(ctrl *access.Controller) accounting.Locks { return ctrl }
func asAccountingPayments(svc *payment.Service) accounting.Payments { return svc }

func newServices(
	subscriptions *subscription.Service,
	batches *batch.Service,
	payments *payment.Service,
	ctrl *access.Controller,
	agg *accounting.Aggregator,
) echoapi.Services {
	return echoapi.Services{
		Subscriptions: subscriptions,
		Batches:       batches,
		Payments:      payments,
		Access:        ctrl,
		Accounting:    agg,
	}
}

func newServer(
	conf *core.Config,
	svcs echoapi.Services,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) *echoapi.Server {
	core.InitValidators(validate, translator)
	return echoapi.NewServer(conf, svcs, validate, translator, logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newBlobStore))
	must(c.Provide(qrsvc.NewUPIGenerator, dig.As(new(subscription.QRGenerator))))
	must(c.Provide(metricsvc.NewPrometheus))
	must(c.Provide(newMetrics))

	must(c.Provide(sqlxrepos.NewSubscriptionRepository, dig.As(new(subscription.Repository))))
	must(c.Provide(sqlxrepos.NewBatchRepository, dig.As(new(batch.Repository))))
	must(c.Provide(sqlxrepos.NewPaymentRepository, dig.As(new(payment.Repository))))
	must(c.Provide(sqlxrepos.NewLockRepository, dig.As(new(access.Repository))))

	must(c.Provide(subscription.NewService))
	must(c.Provide(asTeacherGate))
	must(c.Provide(asAccessTeachers))
	must(c.Provide(batch.NewService))
	must(c.Provide(asAccessBatches))
	must(c.Provide(asPaymentBatches))
	must(c.Provide(asAccountingBatches))
	must(c.Provide(access.NewController))
	must(c.Provide(asLockEvaluator))
	must(c.Provide(asAccountingLocks))
	must(c.Provide(payment.NewService))
	must(c.Provide(asAccountingPayments))
	must(c.Provide(accounting.NewAggregator))

	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(newServices))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
