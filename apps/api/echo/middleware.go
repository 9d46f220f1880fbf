package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/access"
)

const (
	contextCallerKey   = "caller"
	contextDecisionKey = "accessDecision"
)

// callerMiddleware resolves the Caller from the JWT claims once per request.
func callerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		caller, err := getCaller(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context caller")
		}
		ctx.Set(contextCallerKey, caller)
		return next(ctx)
	}
}

func contextCaller(ctx echo.Context) core.Caller {
	if caller, ok := ctx.Get(contextCallerKey).(core.Caller); ok {
		return caller
	}
	return callerOrZero(ctx)
}

func roleMiddleware(roles ...core.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			caller := contextCaller(ctx)
			for _, role := range roles {
				if caller.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(core.RoleAdmin)
}

// activeTeacherMiddleware rejects locked teachers before they reach a teacher surface. Admins pass.
func activeTeacherMiddleware(ctrl *access.Controller) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := ctrl.AuthorizeTeacher(ctx.Request().Context(), contextCaller(ctx)); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// surfaceMiddleware gates the `:surface` of the `:batchID` batch. Locked students only reach payments.
func surfaceMiddleware(ctrl *access.Controller) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			dec, err := ctrl.AuthorizeStudentSurface(
				ctx.Request().Context(),
				contextCaller(ctx),
				ctx.Param("batchID"),
				access.Surface(ctx.Param("surface")),
			)
			if err != nil {
				return err
			}
			ctx.Set(contextDecisionKey, dec)
			return next(ctx)
		}
	}
}
