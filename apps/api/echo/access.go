package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core/access"
)

type accessApi struct {
	ctrl *access.Controller
}

type lockResponse struct {
	BatchID   string `json:"batch_id"`
	StudentID string `json:"student_id"`
	Locked    bool   `json:"locked"`
}

func registerAccessAPI(g *echo.Group, svcs Services) {
	api := accessApi{ctrl: svcs.Access}

	// registered on g: a new "/batches/:batchID" group would shadow the batch routes
	g.POST("/batches/:batchID/students/:studentID/lock", api.toggleLock)
	g.GET("/batches/:batchID/students/:studentID/lock", api.lockStatus)
	g.GET("/batches/:batchID/locks", api.listLocks)
	g.GET("/batches/:batchID/surfaces/:surface", api.surface, surfaceMiddleware(svcs.Access))
}

func (api *accessApi) toggleLock(ctx echo.Context) error {
	var data access.ToggleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ToggleRequest")
	}

	batchID, studentID := ctx.Param("batchID"), ctx.Param("studentID")
	locked, err := api.ctrl.ToggleStudentLock(ctx.Request().Context(), contextCaller(ctx), batchID, studentID, data.Reason)
	if err != nil {
		return errors.Wrap(err, "toggling student lock")
	}
	return ctx.JSON(http.StatusOK, lockResponse{BatchID: batchID, StudentID: studentID, Locked: locked})
}

// lockStatus lets the batch's managers and the student read the lock.
func (api *accessApi) lockStatus(ctx echo.Context) error {
	caller := contextCaller(ctx)
	batchID, studentID := ctx.Param("batchID"), ctx.Param("studentID")
	if caller.IsStudent() && !caller.Is(studentID) {
		return errHttpForbidden
	}

	// the payments surface is open to locked students, so it doubles as the read authorization
	if !caller.IsStudent() {
		if _, err := api.ctrl.ListLocks(ctx.Request().Context(), caller, batchID); err != nil {
			return errors.Wrap(err, "authorizing lock read")
		}
	} else if _, err := api.ctrl.AuthorizeStudentSurface(ctx.Request().Context(), caller, batchID, access.SurfacePayments); err != nil {
		return errors.Wrap(err, "authorizing lock read")
	}

	locked, err := api.ctrl.IsStudentLocked(ctx.Request().Context(), batchID, studentID)
	if err != nil {
		return errors.Wrap(err, "reading student lock")
	}
	return ctx.JSON(http.StatusOK, lockResponse{BatchID: batchID, StudentID: studentID, Locked: locked})
}

func (api *accessApi) listLocks(ctx echo.Context) error {
	locks, err := api.ctrl.ListLocks(ctx.Request().Context(), contextCaller(ctx), ctx.Param("batchID"))
	if err != nil {
		return errors.Wrap(err, "listing locks")
	}
	return ctx.JSON(http.StatusOK, locks)
}

// surface is the entry point of a gated student surface; content is served by other systems.
func (api *accessApi) surface(ctx echo.Context) error {
	dec, ok := ctx.Get(contextDecisionKey).(access.Decision)
	if !ok {
		return errHttpForbidden
	}
	return ctx.JSON(http.StatusOK, dec)
}
