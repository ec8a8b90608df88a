package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/userauth/internal/http/errors"
	"github.com/dropDatabas3/userauth/internal/http/middlewares"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// LogoutController handles POST /logout and POST /logout-all.
type LogoutController struct {
	service svc.LogoutService
}

func NewLogoutController(service svc.LogoutService) *LogoutController {
	return &LogoutController{service: service}
}

// Logout revokes the presented refresh token only.
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutController.Logout"))

	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	tok, appErr := readRefreshToken(w, r)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	if err := c.service.Logout(ctx, middlewares.GetUserID(ctx), dto.RefreshRequest{RefreshToken: tok}); err != nil {
		log.Debug("logout failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Logged out successfully"})
}

// LogoutAll revokes every refresh token of the caller.
func (c *LogoutController) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutController.LogoutAll"))

	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	n, err := c.service.LogoutAll(ctx, middlewares.GetUserID(ctx))
	if err != nil {
		log.Debug("logout-all failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}
	log.Debug("sessions revoked", logger.Count(n))
	w.WriteHeader(http.StatusNoContent)
}
