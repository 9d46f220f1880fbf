package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/accounting"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/payment"
	"github.com/trezcool/feedesk/core/subscription"
	blobsvc "github.com/trezcool/feedesk/services/blob"
	logsvc "github.com/trezcool/feedesk/services/logger"
	qrsvc "github.com/trezcool/feedesk/services/qrcode"
	"github.com/trezcool/feedesk/storage/database"
	sqlxrepos "github.com/trezcool/feedesk/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	// start CLI
	cli := newCommandLine(db, conf, logsvc.NewRollbarLogger(logger, conf))
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newCommandLine(db *sqlx.DB, conf *core.Config, appLogger core.Logger) *commandLine {
	var blobs core.BlobStore = blobsvc.NewMemoryStore()
	if conf.Storage.CloudinaryURL != "" {
		store, err := blobsvc.NewCloudinaryStore(conf)
		errAndDie(err)
		blobs = store
	}

	subs := subscription.NewService(
		sqlxrepos.NewSubscriptionRepository(db), blobs, qrsvc.NewUPIGenerator(), appLogger, core.NopMetrics, conf,
	)
	batches := batch.NewService(sqlxrepos.NewBatchRepository(db), subs, appLogger)
	ctrl := access.NewController(sqlxrepos.NewLockRepository(db), batches, subs, appLogger, core.NopMetrics)
	payments := payment.NewService(sqlxrepos.NewPaymentRepository(db), batches, ctrl, blobs, appLogger, core.NopMetrics)

	return &commandLine{
		db:   db,
		subs: subs,
		agg:  accounting.NewAggregator(batches, payments, ctrl),
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
