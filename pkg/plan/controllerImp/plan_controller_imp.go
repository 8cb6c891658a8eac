package controllerImp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"travo/pkg/backend"
	"travo/pkg/deletion"
	"travo/pkg/export"
	"travo/pkg/notify"
	"travo/pkg/places"
	"travo/pkg/plan/controller"
	"travo/pkg/plan/service"
	"travo/pkg/planview"
	sessionsvc "travo/pkg/session/service"
	"travo/pkg/widget"
)

type PlanCtrl struct {
	svc   service.PlanService
	sess  sessionsvc.SessionService
	notes *notify.Recorder
	maps  *widget.Loader
}

var _ controller.PlanController = (*PlanCtrl)(nil)

func NewPlanCtrl(svc service.PlanService, sess sessionsvc.SessionService, notes *notify.Recorder, maps *widget.Loader) *PlanCtrl {
	return &PlanCtrl{svc: svc, sess: sess, notes: notes, maps: maps}
}

// fail maps service errors onto HTTP answers. A backend 401 also drops the
// local session so the next page load goes to login.
func (h *PlanCtrl) fail(c echo.Context, err error) error {
	var se *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		if h.sess != nil {
			h.sess.Invalidate("backend answered 401")
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "login_required"})
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, planview.ErrActivityNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, backend.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "backend timed out"})
	case errors.Is(err, service.ErrDayOutOfRange), errors.Is(err, service.ErrInvalidActivity):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, planview.ErrNotMounted):
		return c.JSON(http.StatusConflict, map[string]string{"error": "plan is not open"})
	case errors.As(err, &se):
		return c.JSON(http.StatusBadGateway, map[string]any{"error": se.Message, "backend_status": se.Status})
	case errors.Is(err, backend.ErrBadResponse):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	c.Logger().Errorf("[plan] %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func pendingConfirmation(c echo.Context, extra map[string]any) error {
	body := map[string]any{"state": deletion.StatePendingConfirmation, "error": "confirm=true required"}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(http.StatusPreconditionRequired, body)
}

func (h *PlanCtrl) List(c echo.Context) error {
	plans, err := h.svc.List(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"plans": plans})
}

func (h *PlanCtrl) Public(c echo.Context) error {
	q := backend.PublicQuery{
		SortBy:            c.QueryParam("sort_by"),
		SortOrder:         c.QueryParam("sort_order"),
		IncludeActivities: c.QueryParam("full") == "true",
	}
	q.Page, _ = strconv.Atoi(c.QueryParam("page"))
	q.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	plans, err := h.svc.Public(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"plans": plans})
}

func (h *PlanCtrl) Generate(c echo.Context) error {
	var req backend.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" || req.StartDate == "" || req.EndDate == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "destination, start_date and end_date are required"})
	}
	v, err := h.svc.Generate(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"plan": v.Plan()})
}

// Get mounts a fresh view of the plan, replacing any earlier one.
func (h *PlanCtrl) Get(c echo.Context) error {
	id := c.Param("id")
	v, err := h.svc.Open(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	recs, err := h.svc.Divergences(id)
	if err != nil {
		c.Logger().Warnf("[plan] divergences for %s: %v", id, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"plan":        v.Plan(),
		"sync":        v.Divergences(),
		"divergences": recs,
	})
}

func (h *PlanCtrl) CloseView(c echo.Context) error {
	if !h.svc.Close(c.Param("id")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "plan is not open"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PlanCtrl) Update(c echo.Context) error {
	var body map[string]any
	if err := c.Bind(&body); err != nil || len(body) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	p, err := h.svc.Update(c.Request().Context(), c.Param("id"), body)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"plan": p})
}

func (h *PlanCtrl) Privacy(c echo.Context) error {
	var body struct {
		IsPublic *bool `json:"is_public"`
	}
	if err := c.Bind(&body); err != nil || body.IsPublic == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "is_public is required"})
	}
	if err := h.svc.SetPrivacy(c.Request().Context(), c.Param("id"), *body.IsPublic); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": c.Param("id"), "is_public": *body.IsPublic})
}

func (h *PlanCtrl) Delete(c echo.Context) error {
	if c.QueryParam("confirm") != "true" {
		return pendingConfirmation(c, nil)
	}
	if err := h.svc.DeletePlan(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PlanCtrl) AddActivity(c echo.Context) error {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "day must be a number"})
	}
	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	a, err := h.svc.AddActivity(c.Request().Context(), c.Param("id"), day, body)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"activity": a})
}

func (h *PlanCtrl) UpdateActivity(c echo.Context) error {
	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	a, err := h.svc.UpdateActivity(c.Request().Context(), c.Param("id"), c.Param("aid"), body)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"activity": a})
}

func (h *PlanCtrl) DeleteActivity(c echo.Context) error {
	req := deletion.Request{
		ActivityID: c.Param("aid"),
		DayIndex:   -1,
		Confirmer:  deletion.Confirmed(c.QueryParam("confirm") == "true"),
	}
	if d, err := strconv.Atoi(c.QueryParam("day")); err == nil {
		req.DayIndex = d
	}
	res, err := h.svc.DeleteActivity(c.Request().Context(), c.Param("id"), req)
	// stale results still carry a real answer: a newer view of the plan got it
	switch {
	case res.State == deletion.StateRolledBack && errors.Is(err, backend.ErrUnauthorized):
		if h.sess != nil {
			h.sess.Invalidate("delete answered 401")
		}
		return c.JSON(http.StatusUnauthorized, map[string]any{"error": "login_required", "result": res})
	case errors.Is(err, planview.ErrNotMounted):
		return c.JSON(http.StatusConflict, map[string]any{"error": "plan is not open", "result": res})
	case res.Declined:
		return pendingConfirmation(c, map[string]any{"result": res})
	case res.Missing:
		return c.JSON(http.StatusNotFound, map[string]any{"error": "activity not found", "result": res})
	case res.Duplicate:
		return c.JSON(http.StatusAccepted, map[string]any{"result": res})
	case res.Busy:
		return c.JSON(http.StatusConflict, map[string]any{"error": "another delete on this day is still running", "result": res})
	case res.State == deletion.StateIdle:
		return c.JSON(http.StatusConflict, map[string]any{"error": "plan view changed", "result": res})
	case res.State == deletion.StateRolledBack:
		msg := "delete failed"
		if err != nil {
			msg = err.Error()
		}
		return c.JSON(http.StatusBadGateway, map[string]any{"error": msg, "result": res})
	}
	return c.JSON(http.StatusOK, map[string]any{"result": res})
}

func (h *PlanCtrl) Import(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	defer f.Close()
	n, err := h.svc.Import(c.Request().Context(), c.Param("id"), f)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrNotFound) {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"imported": n})
}

func (h *PlanCtrl) Markers(c echo.Context) error {
	v, err := h.svc.Current(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	ms := places.Markers(v.Plan())
	resp := map[string]any{"markers": ms, "map_ready": false}
	if h.maps != nil {
		h.maps.Start()
		resp["map_ready"] = h.maps.Script() != nil
	}
	if s, w, n, e, ok := places.Bounds(ms); ok {
		resp["bounds"] = map[string]float64{"south": s, "west": w, "north": n, "east": e}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *PlanCtrl) Export(c echo.Context) error {
	v, err := h.svc.Current(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	p := v.Plan()
	var buf bytes.Buffer
	if err := export.Write(&buf, p); err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.Filename(p)))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *PlanCtrl) MapScript(c echo.Context) error {
	if h.maps == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "maps disabled"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.maps.Ready(ctx); err != nil {
		if errors.Is(err, widget.ErrDisabled) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "maps disabled"})
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.Blob(http.StatusOK, "application/javascript", h.maps.Script())
}

// Notifications drains the queued user messages.
func (h *PlanCtrl) Notifications(c echo.Context) error {
	msgs := []notify.Message{}
	if h.notes != nil {
		if m := h.notes.Drain(); m != nil {
			msgs = m
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"notifications": msgs})
}
