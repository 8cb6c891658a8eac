package controllerImp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"travo/database"
	"travo/pkg/backend"
)

type stubDiag []backend.Check

func (s stubDiag) Diagnose(context.Context) []backend.Check { return s }

func TestHealth(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h := NewHealthCtrl(db, stubDiag{{Name: "health", OK: true}, {Name: "auth", OK: false, Status: 401}})
	e := echo.New()
	e.GET("/health", h.Health)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("backend trouble must not fail health, got=%d", rec.Code)
	}
	var body struct {
		Status struct {
			OK        bool `json:"ok"`
			BackendOK bool `json:"backend_ok"`
		} `json:"status"`
		Checks struct {
			Backend []backend.Check `json:"backend"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Status.OK || body.Status.BackendOK || len(body.Checks.Backend) != 2 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with closed db, got=%d", rec.Code)
	}
}
