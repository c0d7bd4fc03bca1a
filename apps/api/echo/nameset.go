package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core/disguise"
)

var errSetNotFoundInCtx = errors.New("name set object not found in echo.Context")

type nameSetApi struct {
	svc      *disguise.Service
	validate *validator.Validate
}

func registerNameSetAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := nameSetApi{svc: deps.DisguiseSvc, validate: deps.Validate}
	manage := authorizeMiddleware(deps.Authorizer.CanManage)

	cg := g.Group("/contexts/:ctx/namesets")
	cg.POST("", api.create, jwt, manage)
	cg.GET("", api.query, jwt, manage)

	// detail endpoints
	dg := g.Group("/namesets/:id", jwt, nameSetMiddleware(api.svc, deps.Authorizer))
	dg.GET("", api.retrieve)
	dg.POST("/aliases", api.addAlias)
	dg.PUT("/aliases/:alias", api.setAvailability)
	dg.POST("/activate", api.activate)
	dg.POST("/retire", api.retire)
	dg.GET("/assignments/:user", api.assignment)
}

func (api *nameSetApi) create(ctx echo.Context) error {
	var data disguise.NewNameSet
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNameSet")
	}

	ns, err := api.svc.CreateNameSet(ctx.Request().Context(), ctx.Param("ctx"), data)
	if err != nil {
		return errors.Wrap(err, "creating name set")
	}
	return ctx.JSON(http.StatusCreated, ns)
}

func (api *nameSetApi) query(ctx echo.Context) error {
	sets, err := api.svc.QueryNameSets(ctx.Request().Context(), ctx.Param("ctx"))
	if err != nil {
		return errors.Wrap(err, "querying name sets")
	}
	if sets == nil {
		sets = []disguise.NameSet{}
	}
	return ctx.JSON(http.StatusOK, sets)
}

func (api *nameSetApi) retrieve(ctx echo.Context) error {
	ns, ok := ctx.Get("object").(disguise.NameSet)
	if !ok {
		return errors.Wrap(errSetNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *nameSetApi) addAlias(ctx echo.Context) error {
	var data disguise.NewAlias
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAlias")
	}

	alias, err := api.svc.AddAlias(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding alias")
	}
	return ctx.JSON(http.StatusCreated, alias)
}

func (api *nameSetApi) setAvailability(ctx echo.Context) error {
	var data disguise.AliasAvailability
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AliasAvailability")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	alias, err := api.svc.SetAliasAvailability(ctx.Request().Context(), ctx.Param("id"), ctx.Param("alias"), *data.Available)
	if err != nil {
		return errors.Wrap(err, "setting alias availability")
	}
	return ctx.JSON(http.StatusOK, alias)
}

func (api *nameSetApi) activate(ctx echo.Context) error {
	ns, err := api.svc.ActivateNameSet(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating name set")
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *nameSetApi) retire(ctx echo.Context) error {
	ns, err := api.svc.RetireNameSet(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retiring name set")
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *nameSetApi) assignment(ctx echo.Context) error {
	alias, err := api.svc.AliasOf(ctx.Request().Context(), ctx.Param("id"), ctx.Param("user"))
	if err != nil {
		return errors.Wrap(err, "getting assigned alias")
	}
	return ctx.JSON(http.StatusOK, alias)
}

// nameSetMiddleware loads the name set & checks the ctxUser can manage its context.
func nameSetMiddleware(svc *disguise.Service, authz Authorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			ns, err := svc.GetNameSet(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting name set")
			}
			if !authz.CanManage(ctx.Request().Context(), claims, ns.ContextID) {
				return errHttpForbidden
			}
			ctx.Set("object", ns)
			return next(ctx)
		}
	}
}
