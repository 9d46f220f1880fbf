package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/batch"
)

type batchApi struct {
	svc      *batch.Service
	validate *validator.Validate
}

func registerBatchAPI(g *echo.Group, svcs Services, validate *validator.Validate) {
	api := batchApi{svc: svcs.Batches, validate: validate}

	bg := g.Group("/batches")
	bg.POST("", api.create, roleMiddleware(core.RoleTeacher), activeTeacherMiddleware(svcs.Access))
	bg.GET("", api.query, roleMiddleware(core.RoleAdmin, core.RoleTeacher))

	dg := bg.Group("/:batchID")
	dg.GET("", api.retrieve)
	dg.POST("/archive", api.archive)
	dg.GET("/students", api.enrollments)
	dg.POST("/students", api.enroll)
}

func (api *batchApi) create(ctx echo.Context) error {
	var data batch.NewBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBatch")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.Create(ctx.Request().Context(), contextCaller(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *batchApi) query(ctx echo.Context) error {
	batches, err := api.svc.Query(ctx.Request().Context(), contextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (api *batchApi) retrieve(ctx echo.Context) error {
	b, err := api.svc.Get(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "getting batch")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *batchApi) archive(ctx echo.Context) error {
	b, err := api.svc.Archive(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "archiving batch")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *batchApi) enrollments(ctx echo.Context) error {
	enrollments, err := api.svc.Enrollments(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *batchApi) enroll(ctx echo.Context) error {
	var data batch.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.Enroll(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"), data.StudentID)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, e)
}
