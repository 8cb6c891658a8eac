package controllerImp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"travo/entities"
	"travo/pkg/auth/controller"
	"travo/pkg/backend"
	"travo/pkg/session/service"
)

type authCtrl struct {
	sess service.SessionService
}

func NewAuthController(sess service.SessionService) controller.AuthController {
	return &authCtrl{sess: sess}
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *authCtrl) Login(c echo.Context) error {
	var body credentials
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	s, err := h.sess.Login(c.Request().Context(), body.Email, body.Password)
	if err != nil {
		return authFailed(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *authCtrl) Register(c echo.Context) error {
	var body credentials
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	if strings.TrimSpace(body.Name) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}
	s, err := h.sess.Register(c.Request().Context(), body.Name, body.Email, body.Password)
	if err != nil {
		return authFailed(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *authCtrl) Logout(c echo.Context) error {
	if err := h.sess.Logout(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *authCtrl) WhoAmI(c echo.Context) error {
	s, _ := c.Get("session").(*entities.Session)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "login_required"})
	}
	return c.JSON(http.StatusOK, s)
}

func authFailed(c echo.Context, err error) error {
	var se *backend.StatusError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, backend.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
	case errors.As(err, &se):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": se.Message})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
}
