package controller

import "github.com/labstack/echo/v4"

type PlanController interface {
	List(c echo.Context) error
	Public(c echo.Context) error
	Generate(c echo.Context) error

	Get(c echo.Context) error
	CloseView(c echo.Context) error
	Update(c echo.Context) error
	Privacy(c echo.Context) error
	Delete(c echo.Context) error

	AddActivity(c echo.Context) error
	UpdateActivity(c echo.Context) error
	DeleteActivity(c echo.Context) error
	Import(c echo.Context) error

	Markers(c echo.Context) error
	Export(c echo.Context) error
	MapScript(c echo.Context) error
	Notifications(c echo.Context) error
}
