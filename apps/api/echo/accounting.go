package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core/accounting"
)

type accountingApi struct {
	agg *accounting.Aggregator
}

func registerAccountingAPI(g *echo.Group, svcs Services) {
	api := accountingApi{agg: svcs.Accounting}

	ag := g.Group("/batches/:batchID/accounting")
	ag.GET("/installments", api.installments)
	ag.GET("/totals", api.totals)
	ag.GET("/students", api.students)
}

func (api *accountingApi) installments(ctx echo.Context) error {
	summaries, err := api.agg.InstallmentBreakdown(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "computing installment breakdown")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *accountingApi) totals(ctx echo.Context) error {
	totals, err := api.agg.BatchTotals(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "computing batch totals")
	}
	return ctx.JSON(http.StatusOK, totals)
}

func (api *accountingApi) students(ctx echo.Context) error {
	balances, err := api.agg.StudentBalances(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "computing student balances")
	}
	return ctx.JSON(http.StatusOK, balances)
}
