package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core/disguise"
)

type contextApi struct {
	svc      *disguise.Service
	validate *validator.Validate
}

func registerContextAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := contextApi{svc: deps.DisguiseSvc, validate: deps.Validate}
	manage := authorizeMiddleware(deps.Authorizer.CanManage)

	cg := g.Group("/contexts", jwt)
	cg.POST("", api.create, manage)
	cg.GET("", api.query)
	cg.GET("/:ctx", api.retrieve)
	cg.DELETE("/:ctx", api.destroy, manage)
}

func (api *contextApi) create(ctx echo.Context) error {
	var data disguise.NewContext
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewContext")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	dctx, err := api.svc.CreateContext(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating context")
	}
	return ctx.JSON(http.StatusCreated, dctx)
}

func (api *contextApi) query(ctx echo.Context) error {
	filter := new(disguise.ContextFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []disguise.Context{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	contexts, err := api.svc.QueryContexts(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying contexts")
	}
	if contexts == nil {
		contexts = []disguise.Context{}
	}
	return ctx.JSON(http.StatusOK, contexts)
}

func (api *contextApi) retrieve(ctx echo.Context) error {
	dctx, err := api.svc.GetContext(ctx.Request().Context(), ctx.Param("ctx"))
	if err != nil {
		return errors.Wrap(err, "getting context")
	}
	return ctx.JSON(http.StatusOK, dctx)
}

func (api *contextApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteContext(ctx.Request().Context(), ctx.Param("ctx")); err != nil {
		return errors.Wrap(err, "deleting context")
	}
	return ctx.NoContent(http.StatusNoContent)
}
