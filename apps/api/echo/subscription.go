package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/subscription"
)

type subscriptionApi struct {
	svc      *subscription.Service
	access   *access.Controller
	validate *validator.Validate
}

type teacherStatusResponse struct {
	Status  subscription.Status  `json:"status"`
	Teacher subscription.Teacher `json:"teacher"`
}

func registerSubscriptionAPI(g *echo.Group, svcs Services, validate *validator.Validate) {
	api := subscriptionApi{
		svc:      svcs.Subscriptions,
		access:   svcs.Access,
		validate: validate,
	}

	tg := g.Group("/teachers")
	tg.POST("", api.registerTeacher, adminMiddleware())
	tg.GET("/:teacherID/status", api.teacherStatus)
	tg.PUT("/:teacherID/status", api.overrideStatus, adminMiddleware())

	pg := g.Group("/plans")
	pg.GET("", api.queryPlans)
	pg.POST("", api.createPlan, adminMiddleware())

	sg := g.Group("/subscriptions/payments")
	sg.POST("", api.submitPayment)
	sg.GET("", api.queryPayments)
	sg.GET("/counts", api.counts, adminMiddleware())
	sg.POST("/:paymentID/decision", api.decide, adminMiddleware())
}

// Teachers

func (api *subscriptionApi) registerTeacher(ctx echo.Context) error {
	var data subscription.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.RegisterTeacher(ctx.Request().Context(), contextCaller(ctx), data)
	if err != nil {
		return errors.Wrap(err, "registering teacher")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *subscriptionApi) teacherStatus(ctx echo.Context) error {
	status, t, err := api.access.TeacherStatus(ctx.Request().Context(), contextCaller(ctx), ctx.Param("teacherID"))
	if err != nil {
		return errors.Wrap(err, "getting teacher status")
	}
	return ctx.JSON(http.StatusOK, teacherStatusResponse{Status: status, Teacher: t})
}

func (api *subscriptionApi) overrideStatus(ctx echo.Context) error {
	var data subscription.StatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.access.SetTeacherStatus(ctx.Request().Context(), contextCaller(ctx), ctx.Param("teacherID"), data.Status)
	if err != nil {
		return errors.Wrap(err, "overriding teacher status")
	}
	return ctx.JSON(http.StatusOK, teacherStatusResponse{Status: t.Status, Teacher: t})
}

// Plans

func (api *subscriptionApi) queryPlans(ctx echo.Context) error {
	plans, err := api.svc.QueryPlans(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *subscriptionApi) createPlan(ctx echo.Context) error {
	var data subscription.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	plan, err := api.svc.CreatePlan(ctx.Request().Context(), contextCaller(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

// Subscription payments

func (api *subscriptionApi) submitPayment(ctx echo.Context) error {
	rcpt, err := bindReceipt(ctx)
	if err != nil {
		return err
	}
	defer rcpt.Close()

	caller := contextCaller(ctx)
	p, err := api.svc.SubmitPayment(ctx.Request().Context(), caller, caller.ID, ctx.FormValue("plan_id"), rcpt.File)
	if err != nil {
		return errors.Wrap(err, "submitting subscription payment")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *subscriptionApi) queryPayments(ctx echo.Context) error {
	var filter subscription.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	payments, err := api.svc.QueryPayments(ctx.Request().Context(), contextCaller(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying subscription payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *subscriptionApi) counts(ctx echo.Context) error {
	counts, err := api.svc.Counts(ctx.Request().Context(), contextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "counting subscription payments")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *subscriptionApi) decide(ctx echo.Context) error {
	var data subscription.DecisionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DecisionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	outcome, err := api.svc.Decide(ctx.Request().Context(), contextCaller(ctx), ctx.Param("paymentID"), data.Decision)
	if err != nil {
		return errors.Wrap(err, "deciding subscription payment")
	}
	return ctx.JSON(http.StatusOK, outcome)
}
