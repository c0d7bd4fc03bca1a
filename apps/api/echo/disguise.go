package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core/disguise"
)

const setupSuccessMsg = "Disguise settings saved."

type disguiseApi struct {
	svc      *disguise.Service
	validate *validator.Validate
}

func registerDisguiseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := disguiseApi{svc: deps.DisguiseSvc, validate: deps.Validate}
	manage := authorizeMiddleware(deps.Authorizer.CanManage)
	reveal := authorizeMiddleware(deps.Authorizer.CanReveal)

	// route-level jwt: a group middleware would shadow the context detail routes
	cg := g.Group("/contexts/:ctx")
	cg.GET("/users/:id/displayname", api.displayName, jwt)
	cg.GET("/displaynames", api.displayNames, jwt)

	dg := cg.Group("/disguise")
	dg.GET("", api.retrieve, jwt, manage)
	dg.PUT("", api.bind, jwt, manage)
	dg.DELETE("", api.unbind, jwt, manage)
	dg.POST("/setup", api.setup, jwt, manage)
	dg.GET("/reveal", api.revealState, jwt, reveal)
	dg.POST("/reveal", api.reveal, jwt, reveal)
}

func (api *disguiseApi) retrieve(ctx echo.Context) error {
	ov, err := api.svc.Describe(ctx.Request().Context(), ctx.Param("ctx"))
	if err != nil {
		return errors.Wrap(err, "describing disguise")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *disguiseApi) bind(ctx echo.Context) error {
	var data disguise.BindRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BindRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	binding, err := api.svc.Bind(ctx.Request().Context(), ctx.Param("ctx"), data.Variant)
	if err != nil {
		return errors.Wrap(err, "binding disguise")
	}
	return ctx.JSON(http.StatusOK, binding)
}

func (api *disguiseApi) unbind(ctx echo.Context) error {
	if err := api.svc.Unbind(ctx.Request().Context(), ctx.Param("ctx")); err != nil {
		return errors.Wrap(err, "unbinding disguise")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *disguiseApi) setup(ctx echo.Context) error {
	var data disguise.Setup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Setup")
	}

	binding, err := api.svc.Setup(ctx.Request().Context(), ctx.Param("ctx"), data.Settings)
	if err != nil {
		return errors.Wrap(err, "setting up disguise")
	}
	return ctx.JSON(http.StatusOK, SetupResponse{Success: setupSuccessMsg, Binding: binding})
}

func (api *disguiseApi) revealState(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	revealed, err := api.svc.RevealState(ctx.Request().Context(), ctx.Param("ctx"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting reveal state")
	}
	return ctx.JSON(http.StatusOK, RevealResponse{Reveal: revealed})
}

func (api *disguiseApi) reveal(ctx echo.Context) error {
	var data disguise.RevealRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RevealRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.SetRevealState(ctx.Request().Context(), ctx.Param("ctx"), claims.Subject, data.Reveal); err != nil {
		return errors.Wrap(err, "setting reveal state")
	}
	if data.ReturnTo != "" {
		return ctx.Redirect(http.StatusSeeOther, data.ReturnTo)
	}
	return ctx.JSON(http.StatusOK, RevealResponse{Reveal: data.Reveal})
}

func (api *disguiseApi) displayName(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	userID := ctx.Param("id")

	name, err := api.svc.ResolveDisplayName(ctx.Request().Context(), ctx.Param("ctx"), userID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "resolving display name")
	}
	return ctx.JSON(http.StatusOK, DisplayNameResponse{UserID: userID, DisplayName: name})
}

func (api *disguiseApi) displayNames(ctx echo.Context) error {
	var query DisplayNamesRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DisplayNamesRequest")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	names, err := api.svc.ResolveDisplayNames(ctx.Request().Context(), ctx.Param("ctx"), claims.Subject, query.IDs...)
	if err != nil {
		return errors.Wrap(err, "resolving display names")
	}
	resp := make([]DisplayNameResponse, 0, len(query.IDs))
	for _, id := range query.IDs {
		resp = append(resp, DisplayNameResponse{UserID: id, DisplayName: names[id]})
	}
	return ctx.JSON(http.StatusOK, resp)
}

type (
	SetupResponse struct {
		Success string           `json:"success"`
		Binding disguise.Binding `json:"binding"`
	}

	RevealResponse struct {
		Reveal bool `json:"reveal"`
	}

	DisplayNameResponse struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
	}

	DisplayNamesRequest struct {
		IDs []string `query:"id"`
	}
)
