package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/userauth/internal/http/errors"
	"github.com/dropDatabas3/userauth/internal/http/middlewares"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// RefreshController handles POST /refresh.
type RefreshController struct {
	service svc.RefreshService
}

func NewRefreshController(service svc.RefreshService) *RefreshController {
	return &RefreshController{service: service}
}

func (c *RefreshController) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("RefreshController.Refresh"))

	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	tok, appErr := readRefreshToken(w, r)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	res, err := c.service.Refresh(ctx, middlewares.GetUserID(ctx), dto.RefreshRequest{RefreshToken: tok})
	if err != nil {
		log.Debug("refresh failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RefreshResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}
