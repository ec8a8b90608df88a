package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/userauth/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/userauth/internal/http/errors"
	svc "github.com/dropDatabas3/userauth/internal/http/services/auth"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// LoginController handles POST /kakao, the mobile and API login.
type LoginController struct {
	service svc.LoginService
}

func NewLoginController(service svc.LoginService) *LoginController {
	return &LoginController{service: service}
}

func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req dto.LoginRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}

	res, err := c.service.Login(ctx, req)
	if err != nil {
		log.Debug("login failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         res.User,
	})
}
