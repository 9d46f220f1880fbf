package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/payment"
)

type paymentApi struct {
	svc *payment.Service
}

type countResponse struct {
	Count int `json:"count"`
}

func registerPaymentAPI(g *echo.Group, svcs Services) {
	api := paymentApi{svc: svcs.Payments}

	pg := g.Group("/batches/:batchID/payments")
	pg.POST("", api.submit)
	pg.GET("", api.listByBatch)
	pg.GET("/pending", api.listPending)
	pg.GET("/pending/count", api.countPending)
	pg.POST("/:paymentID/approve", api.approve)
	pg.POST("/:paymentID/reject", api.reject)

	g.GET("/batches/:batchID/students/:studentID/payments", api.listByStudent)
}

// submit takes a multipart form: installment_number, amount, feedback, receipt (file).
// Students submit for themselves; admins pass student_id.
func (api *paymentApi) submit(ctx echo.Context) error {
	caller := contextCaller(ctx)
	data := payment.NewPayment{
		BatchID:   ctx.Param("batchID"),
		StudentID: caller.ID,
		Feedback:  ctx.FormValue("feedback"),
	}
	if caller.IsAdmin() {
		data.StudentID = ctx.FormValue("student_id")
	}

	var fldErrs []core.FieldError
	var err error
	if data.InstallmentNumber, err = formInt(ctx, "installment_number"); err != nil {
		fldErrs = append(fldErrs, err.(*core.ValidationError).Fields...)
	}
	if data.Amount, err = formDecimal(ctx, "amount"); err != nil {
		fldErrs = append(fldErrs, err.(*core.ValidationError).Fields...)
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}

	rcpt, err := bindReceipt(ctx)
	if err != nil {
		return err
	}
	defer rcpt.Close()

	p, err := api.svc.Submit(ctx.Request().Context(), caller, data, rcpt.File)
	if err != nil {
		return errors.Wrap(err, "submitting payment")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *paymentApi) listByBatch(ctx echo.Context) error {
	records, err := api.svc.ListByBatch(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "listing batch payments")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *paymentApi) listByStudent(ctx echo.Context) error {
	payments, err := api.svc.ListByStudent(
		ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"), ctx.Param("studentID"),
	)
	if err != nil {
		return errors.Wrap(err, "listing student payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) listPending(ctx echo.Context) error {
	payments, err := api.svc.ListPending(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "listing pending payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) countPending(ctx echo.Context) error {
	count, err := api.svc.CountPending(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "counting pending payments")
	}
	return ctx.JSON(http.StatusOK, countResponse{Count: count})
}

func (api *paymentApi) approve(ctx echo.Context) error {
	p, err := api.svc.Approve(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"), ctx.Param("paymentID"))
	if err != nil {
		return errors.Wrap(err, "approving payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) reject(ctx echo.Context) error {
	p, err := api.svc.Reject(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"), ctx.Param("paymentID"))
	if err != nil {
		return errors.Wrap(err, "rejecting payment")
	}
	return ctx.JSON(http.StatusOK, p)
}
