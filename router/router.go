package router

import (
	"github.com/labstack/echo/v4"

	authctrl "travo/pkg/auth/controller"
	"travo/pkg/middleware"
	planctrl "travo/pkg/plan/controller"
	"travo/pkg/session/service"
)

func New(
	e *echo.Echo,
	sess service.SessionService,
	authCtrl authctrl.AuthController,
	planCtrl planctrl.PlanController,
	healthCtrl interface{ Health(echo.Context) error },
) *echo.Echo {
	e.GET("/health", healthCtrl.Health)
	e.GET("/maps/script.js", planCtrl.MapScript)

	e.POST("/auth/login", authCtrl.Login)
	e.POST("/auth/register", authCtrl.Register)
	e.POST("/auth/logout", authCtrl.Logout)

	api := e.Group("", middleware.RequireSession(sess))
	api.GET("/whoami", authCtrl.WhoAmI)
	api.GET("/notifications", planCtrl.Notifications)

	api.GET("/plans", planCtrl.List)
	api.GET("/plans/public", planCtrl.Public)
	api.POST("/plans/generate", planCtrl.Generate)

	g := api.Group("/plans/:id")
	g.GET("", planCtrl.Get)
	g.DELETE("/view", planCtrl.CloseView)
	g.PUT("", planCtrl.Update)
	g.PATCH("/privacy", planCtrl.Privacy)
	g.DELETE("", planCtrl.Delete)

	g.POST("/days/:day/activities", planCtrl.AddActivity)
	g.PUT("/activities/:aid", planCtrl.UpdateActivity)
	g.DELETE("/activities/:aid", planCtrl.DeleteActivity)
	g.POST("/import", planCtrl.Import)

	g.GET("/markers", planCtrl.Markers)
	g.GET("/export.xlsx", planCtrl.Export)
	return e
}
