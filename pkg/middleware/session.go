package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"travo/pkg/session/service"
)

// RequireSession rejects requests without a live local session. On success
// the session is available as c.Get("session") and the user id as
// c.Get("uid").
func RequireSession(sess service.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := sess.Current()
			if err != nil {
				if !errors.Is(err, service.ErrUnauthenticated) {
					c.Logger().Errorf("[session] lookup: %v", err)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "login_required"})
			}
			c.Set("session", s)
			c.Set("uid", s.UserID)
			return next(c)
		}
	}
}
