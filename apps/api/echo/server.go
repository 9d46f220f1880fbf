package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/accounting"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/payment"
	"github.com/trezcool/feedesk/core/subscription"
)

type (
	// Services are the domain services exposed over HTTP.
	Services struct {
		Subscriptions *subscription.Service
		Batches       *batch.Service
		Payments      *payment.Service
		Access        *access.Controller
		Accounting    *accounting.Aggregator
	}

	ServerOptions struct {
		DisableReqLogs bool
	}

	Server struct {
		conf       *core.Config
		app        *echo.Echo
		svcs       Services
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
		errors     chan error
		shutdown   chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(
	conf *core.Config,
	svcs Services,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
	opts ...ServerOptions,
) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(svcs.Subscriptions, "svcs.Subscriptions"),
		vala.IsNotNil(svcs.Batches, "svcs.Batches"),
		vala.IsNotNil(svcs.Payments, "svcs.Payments"),
		vala.IsNotNil(svcs.Access, "svcs.Access"),
		vala.IsNotNil(svcs.Accounting, "svcs.Accounting"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	var opt ServerOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	s := &Server{
		conf:       conf,
		app:        echo.New(),
		svcs:       svcs,
		validate:   validate,
		translator: translator,
		logger:     logger,
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(opt)
	return s
}

func (s *Server) setup(opt ServerOptions) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !opt.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1", middleware.JWTWithConfig(newJWTConfig(s.conf)), callerMiddleware)

	registerSubscriptionAPI(v1, s.svcs, s.validate)
	registerBatchAPI(v1, s.svcs, s.validate)
	registerPaymentAPI(v1, s.svcs)
	registerAccessAPI(v1, s.svcs)
	registerAccountingAPI(v1, s.svcs)
}

// Start blocks serving HTTP; a listener failure is reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
