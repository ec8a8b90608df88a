package auth

import (
	"net/http"

	"github.com/dropDatabas3/userauth/internal/http/middlewares"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// MeController handles GET and DELETE /me.
type MeController struct {
	service svc.AccountService
}

func NewMeController(service svc.AccountService) *MeController {
	return &MeController{service: service}
}

func (c *MeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.Me(w, r)
	case http.MethodDelete:
		c.Delete(w, r)
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

// Me returns the caller's user summary.
func (c *MeController) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := c.service.CurrentUser(ctx, middlewares.GetUserID(ctx))
	if err != nil {
		logger.From(ctx).Debug("me failed", logger.Op("MeController.Me"), logger.Err(err))
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Delete removes the caller's account and every session.
func (c *MeController) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := c.service.DeleteAccount(ctx, middlewares.GetUserID(ctx)); err != nil {
		logger.From(ctx).Debug("account deletion failed", logger.Op("MeController.Delete"), logger.Err(err))
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
