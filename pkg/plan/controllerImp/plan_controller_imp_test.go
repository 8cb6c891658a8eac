package controllerImp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"travo/database"
	"travo/entities"
	"travo/pkg/backend"
	"travo/pkg/itinerary"
	"travo/pkg/notify"
	"travo/pkg/places"
	"travo/pkg/plan/serviceImp"
	"travo/pkg/planview"
	sessRepo "travo/pkg/session/repository"
	sessRepoImp "travo/pkg/session/repositoryImp"
	sessSvcImp "travo/pkg/session/serviceImp"
	syncRepoImp "travo/pkg/synclog/repositoryImp"
)

const (
	planID  = "6650f1a2b3c4d5e6f7a8b9c0"
	actOK   = "0b5c6f1e-3a52-4c4e-9a57-1f1d6c1e2a01"
	actGone = "0b5c6f1e-3a52-4c4e-9a57-1f1d6c1e2a02"
	actFail = "0b5c6f1e-3a52-4c4e-9a57-1f1d6c1e2a03"
)

type fakeBackend struct {
	mu           sync.Mutex
	deleted      map[string]bool
	deletes      []string
	unauthorized atomic.Bool
	// held/hold park an activity delete until the test lets it answer
	held chan struct{}
	hold chan struct{}
}

func (f *fakeBackend) plan() echo.Map {
	f.mu.Lock()
	defer f.mu.Unlock()
	day1 := []any{}
	for _, a := range []echo.Map{
		{"id": actOK, "name": "Temple", "lat": 34.99, "lng": 135.78, "type": "景點"},
		{"id": actGone, "name": "Market", "time": "12:00"},
	} {
		if !f.deleted[a["id"].(string)] {
			day1 = append(day1, a)
		}
	}
	return echo.Map{
		"_id": echo.Map{"$oid": planID}, "title": "Kyoto", "destination": "Kyoto",
		"start_date": "2025-05-01", "end_date": "2025-05-02",
		"days": []any{
			echo.Map{"date": "2025-05-01", "activities": day1},
			echo.Map{"date": "2025-05-02", "activities": []any{echo.Map{"id": actFail, "name": "Castle"}}},
		},
	}
}

func (f *fakeBackend) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

func (f *fakeBackend) routes(e *echo.Echo) {
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if f.unauthorized.Load() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "token expired"})
			}
			return next(c)
		}
	})
	e.GET("/api/travel-plans/:id", func(c echo.Context) error {
		if c.Param("id") != planID {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "no such plan"})
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "plan": f.plan()})
	})
	e.POST("/api/travel-plans/generate", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "plan": echo.Map{
			"id": planID, "destination": "Kyoto", "start_date": "2025-05-01", "end_date": "2025-05-03",
		}})
	})
	e.DELETE("/api/travel-plans/:id/activities/:aid", func(c echo.Context) error {
		aid := c.Param("aid")
		f.mu.Lock()
		f.deletes = append(f.deletes, aid)
		f.mu.Unlock()
		if f.hold != nil {
			f.held <- struct{}{}
			<-f.hold
			if f.unauthorized.Load() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "token expired"})
			}
		}
		switch aid {
		case actOK:
			f.mu.Lock()
			f.deleted[aid] = true
			f.mu.Unlock()
			return c.JSON(http.StatusOK, echo.Map{"success": true})
		case actGone:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "activity not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "database unavailable"})
	})
}

type harness struct {
	e     *echo.Echo
	fake  *fakeBackend
	notes *notify.Recorder
	sess  sessRepo.SessionRepository
}

func setup(t *testing.T) *harness {
	t.Helper()
	fake := &fakeBackend{deleted: map[string]bool{}}
	be := echo.New()
	fake.routes(be)
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "travo.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	repo := sessRepoImp.New(db)
	api := backend.NewHTTP(backend.Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second, RetryBackoff: time.Millisecond}, sessSvcImp.TokenSource(repo))
	notes := notify.NewRecorder(10)
	svc := serviceImp.NewPlanService(api, planview.NewRegistry(), syncRepoImp.New(db), places.NewMock(), notes,
		itinerary.Options{Now: func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) }})
	h := NewPlanCtrl(svc, sessSvcImp.New(repo, api), notes, nil)

	e := echo.New()
	e.POST("/plans/generate", h.Generate)
	e.GET("/plans/:id", h.Get)
	e.DELETE("/plans/:id", h.Delete)
	e.DELETE("/plans/:id/activities/:aid", h.DeleteActivity)
	e.GET("/plans/:id/markers", h.Markers)
	e.GET("/plans/:id/export.xlsx", h.Export)
	e.GET("/notifications", h.Notifications)
	return &harness{e: e, fake: fake, notes: notes, sess: repo}
}

func (h *harness) call(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

type planBody struct {
	Plan        entities.TravelPlan   `json:"plan"`
	Divergences []entities.SyncRecord `json:"divergences"`
}

type deleteBody struct {
	Error  string `json:"error"`
	State  string `json:"state"`
	Result struct {
		State      string `json:"state"`
		SyncStatus string `json:"sync_status"`
		Duplicate  bool   `json:"duplicate"`
		Stale      bool   `json:"stale"`
	} `json:"result"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func has(p entities.TravelPlan, id string) bool {
	d, _ := p.FindActivity(id)
	return d >= 0
}

func TestDeleteActivity_Lifecycle(t *testing.T) {
	h := setup(t)
	rec := h.call(http.MethodGet, "/plans/"+planID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got=%d %s", rec.Code, rec.Body.String())
	}
	if p := decode[planBody](t, rec).Plan; len(p.Days) != 2 || p.ActivityCount() != 3 || p.Days[0].Activities[0].Category != entities.CategorySightseeing {
		t.Fatalf("unexpected plan %+v", p)
	}

	rec = h.call(http.MethodDelete, "/plans/"+planID+"/activities/"+actOK, "")
	if rec.Code != http.StatusPreconditionRequired || decode[deleteBody](t, rec).State != "pending_confirmation" {
		t.Fatalf("expected 428 pending_confirmation, got=%d %s", rec.Code, rec.Body.String())
	}
	if h.fake.deleteCount() != 0 {
		t.Fatalf("unconfirmed delete must not reach the backend")
	}

	rec = h.call(http.MethodDelete, "/plans/"+planID+"/activities/"+actOK+"?confirm=true&day=0", "")
	if rec.Code != http.StatusOK || decode[deleteBody](t, rec).Result.State != "confirmed" {
		t.Fatalf("expected confirmed, got=%d %s", rec.Code, rec.Body.String())
	}

	rec = h.call(http.MethodDelete, "/plans/"+planID+"/activities/"+actGone+"?confirm=true", "")
	body := decode[deleteBody](t, rec)
	if rec.Code != http.StatusOK || body.Result.State != "degraded_local_only" || body.Result.SyncStatus != "local_only" {
		t.Fatalf("expected local-only success, got=%d %s", rec.Code, rec.Body.String())
	}
	if n := h.notes.Len(); n != 0 {
		t.Fatalf("not-found must not notify the user, got=%d messages", n)
	}

	// the backend still lists the activity; the ledger keeps it hidden
	pb := decode[planBody](t, h.call(http.MethodGet, "/plans/"+planID, ""))
	if has(pb.Plan, actGone) || has(pb.Plan, actOK) || len(pb.Divergences) != 1 {
		t.Fatalf("expected both deletes to stick, got plan=%+v divergences=%+v", pb.Plan.Days, pb.Divergences)
	}

	rec = h.call(http.MethodDelete, "/plans/"+planID+"/activities/"+actFail+"?confirm=true&day=1", "")
	if rec.Code != http.StatusBadGateway || decode[deleteBody](t, rec).Result.State != "rolled_back" {
		t.Fatalf("expected rollback, got=%d %s", rec.Code, rec.Body.String())
	}
	notes := decode[struct {
		Notifications []notify.Message `json:"notifications"`
	}](t, h.call(http.MethodGet, "/notifications", ""))
	if len(notes.Notifications) != 1 || notes.Notifications[0].Level != notify.LevelError {
		t.Fatalf("expected one error notification, got=%+v", notes.Notifications)
	}
	pb = decode[planBody](t, h.call(http.MethodGet, "/plans/"+planID, ""))
	if !has(pb.Plan, actFail) {
		t.Fatalf("rolled back activity must be present")
	}
}

// reopenDuringDelete parks a confirmed delete of actOK in the backend and
// reopens the plan while it is unresolved.
func reopenDuringDelete(t *testing.T, h *harness) <-chan *httptest.ResponseRecorder {
	t.Helper()
	h.fake.held = make(chan struct{}, 1)
	h.fake.hold = make(chan struct{})
	if rec := h.call(http.MethodGet, "/plans/"+planID, ""); rec.Code != http.StatusOK {
		t.Fatalf("open: %d", rec.Code)
	}
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- h.call(http.MethodDelete, "/plans/"+planID+"/activities/"+actOK+"?confirm=true", "") }()
	<-h.fake.held

	pb := decode[planBody](t, h.call(http.MethodGet, "/plans/"+planID, ""))
	if has(pb.Plan, actOK) {
		t.Fatalf("reopened plan shows an activity whose delete is unresolved")
	}
	rec := h.call(http.MethodDelete, "/plans/"+planID+"/activities/"+actOK+"?confirm=true", "")
	if rec.Code != http.StatusAccepted || !decode[deleteBody](t, rec).Result.Duplicate {
		t.Fatalf("expected 202 duplicate, got=%d %s", rec.Code, rec.Body.String())
	}
	return done
}

func TestDeleteActivity_ConfirmedAfterReopen(t *testing.T) {
	h := setup(t)
	done := reopenDuringDelete(t, h)
	close(h.fake.hold)

	rec := <-done
	body := decode[deleteBody](t, rec)
	if rec.Code != http.StatusOK || body.Result.State != "confirmed" || !body.Result.Stale {
		t.Fatalf("expected 200 confirmed stale, got=%d %s", rec.Code, rec.Body.String())
	}
	if n := h.fake.deleteCount(); n != 1 {
		t.Fatalf("expected one backend delete, got=%d", n)
	}
	if pb := decode[planBody](t, h.call(http.MethodGet, "/plans/"+planID, "")); has(pb.Plan, actOK) {
		t.Fatalf("confirmed delete must stick")
	}
}

func TestDeleteActivity_UnauthorizedAfterReopen(t *testing.T) {
	h := setup(t)
	if err := h.sess.Save(&entities.Session{UserID: "u1", Token: "t"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	done := reopenDuringDelete(t, h)
	h.fake.unauthorized.Store(true)
	close(h.fake.hold)

	rec := <-done
	if rec.Code != http.StatusUnauthorized || !decode[deleteBody](t, rec).Result.Stale {
		t.Fatalf("expected 401 for a stale rollback, got=%d %s", rec.Code, rec.Body.String())
	}
	if s, _ := h.sess.Current(); s != nil {
		t.Fatalf("session must be cleared")
	}
}

func TestDeleteActivity_RequiresOpenPlan(t *testing.T) {
	h := setup(t)
	rec := h.call(http.MethodDelete, "/plans/"+planID+"/activities/"+actOK+"?confirm=true", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got=%d", rec.Code)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	h := setup(t)
	if err := h.sess.Save(&entities.Session{UserID: "u1", Token: "stale"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	h.fake.unauthorized.Store(true)
	rec := h.call(http.MethodGet, "/plans/"+planID, "")
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "login_required") {
		t.Fatalf("expected 401 login_required, got=%d %s", rec.Code, rec.Body.String())
	}
	if s, _ := h.sess.Current(); s != nil {
		t.Fatalf("session must be cleared")
	}
}

func TestGenerate_SynthesizesExampleDays(t *testing.T) {
	h := setup(t)
	if rec := h.call(http.MethodPost, "/plans/generate", `{"destination":" "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got=%d", rec.Code)
	}
	rec := h.call(http.MethodPost, "/plans/generate", `{"destination":"Kyoto","start_date":"2025-05-01","end_date":"2025-05-03","interests":["temples"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got=%d %s", rec.Code, rec.Body.String())
	}
	p := decode[planBody](t, rec).Plan
	if p.Title != "Trip to Kyoto" || len(p.Days) != 3 || !p.Days[2].Activities[0].Placeholder {
		t.Fatalf("unexpected plan %+v", p)
	}
	if h.notes.Len() != 1 {
		t.Fatalf("expected an empty-itinerary warning")
	}
}

func TestMarkersAndExport(t *testing.T) {
	h := setup(t)
	rec := h.call(http.MethodGet, "/plans/"+planID+"/markers", "")
	mb := decode[struct {
		Markers []places.Marker    `json:"markers"`
		Bounds  map[string]float64 `json:"bounds"`
	}](t, rec)
	if len(mb.Markers) != 1 || mb.Markers[0].ActivityID != actOK || mb.Bounds["north"] != 34.99 {
		t.Fatalf("unexpected markers %s", rec.Body.String())
	}

	rec = h.call(http.MethodGet, "/plans/"+planID+"/export.xlsx", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "Kyoto-2025-05-01.xlsx") {
		t.Fatalf("unexpected export response %d %v", rec.Code, rec.Header())
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Itinerary")
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 activities, got=%d", len(rows))
	}
}

func TestDeletePlanNeedsConfirmation(t *testing.T) {
	h := setup(t)
	if rec := h.call(http.MethodDelete, "/plans/"+planID, ""); rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got=%d", rec.Code)
	}
}
