package controllerImp

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"travo/pkg/backend"
)

var appStart = time.Now()

// Diagnoser probes the travel-plan backend.
type Diagnoser interface {
	Diagnose(ctx context.Context) []backend.Check
}

type HealthCtrl struct {
	db  *gorm.DB
	api Diagnoser
}

func NewHealthCtrl(db *gorm.DB, api Diagnoser) *HealthCtrl { return &HealthCtrl{db: db, api: api} }

type sub struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

// Health reports 503 only when the local store is down. Backend problems
// are listed but do not fail the check; ?deep=1 adds the backend probes.
func (h *HealthCtrl) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 800*time.Millisecond)
	defer cancel()

	db := sub{OK: true}
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			db = sub{Err: "db.DB(): " + err.Error()}
		} else if err := sqlDB.PingContext(ctx); err != nil {
			db = sub{Err: "ping: " + err.Error()}
		}
	} else {
		db = sub{Err: "gorm db is nil"}
	}

	checks := map[string]any{"database": db}
	backendOK := true
	if h.api != nil && c.QueryParam("deep") == "1" {
		bctx, bcancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer bcancel()
		probes := h.api.Diagnose(bctx)
		for _, p := range probes {
			backendOK = backendOK && p.OK
		}
		checks["backend"] = probes
	}

	status := http.StatusOK
	if !db.OK {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"status":     map[string]any{"ok": db.OK, "backend_ok": backendOK},
		"uptime_sec": int(time.Since(appStart).Seconds()),
		"checks":     checks,
		"time":       time.Now().Format(time.RFC3339),
	})
}
