package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"travo/entities"
)

func newServer(t *testing.T, setup func(e *echo.Echo)) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.HideBanner = true
	setup(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, retries int) Client {
	return NewHTTP(Config{
		BaseURL:      srv.URL + "/api/",
		Timeout:      2 * time.Second,
		ReadRetries:  retries,
		RetryBackoff: time.Millisecond,
	}, StaticToken("tok-1"))
}

func TestGet_RetriesServerErrorsWithBackoff(t *testing.T) {
	var calls int32
	srv := newServer(t, func(e *echo.Echo) {
		e.GET("/api/travel-plans", func(c echo.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return c.JSON(http.StatusBadGateway, echo.Map{"message": "upstream"})
			}
			if c.Request().Header.Get("Authorization") != "Bearer tok-1" {
				return c.NoContent(http.StatusUnauthorized)
			}
			return c.JSON(http.StatusOK, echo.Map{"plans": []any{echo.Map{"id": "p1"}}})
		})
	})
	plans, err := newClient(srv, 2).ListPlans(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(plans) != 1 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 1 plan after 3 calls, got=%d plans, %d calls", len(plans), calls)
	}
}

func TestGet_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := newServer(t, func(e *echo.Echo) {
		e.GET("/api/travel-plans", func(c echo.Context) error {
			atomic.AddInt32(&calls, 1)
			return c.NoContent(http.StatusServiceUnavailable)
		})
	})
	_, err := newClient(srv, 2).ListPlans(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status error, got=%v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 1 try + 2 retries, got=%d", calls)
	}
}

func TestTimeoutIsReported(t *testing.T) {
	srv := newServer(t, func(e *echo.Echo) {
		e.GET("/api/travel-plans", func(c echo.Context) error {
			time.Sleep(200 * time.Millisecond)
			return c.JSON(http.StatusOK, []any{})
		})
	})
	cl := NewHTTP(Config{BaseURL: srv.URL + "/api", Timeout: 20 * time.Millisecond}, nil)
	_, err := cl.ListPlans(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got=%v", err)
	}
}

func TestFetchPlan_FallsBackToPublicRoutes(t *testing.T) {
	var owner int32
	srv := newServer(t, func(e *echo.Echo) {
		e.GET("/api/travel-plans/:id", func(c echo.Context) error {
			atomic.AddInt32(&owner, 1)
			return c.NoContent(http.StatusUnauthorized)
		})
		e.GET("/api/travel-plans/public/:id", func(c echo.Context) error {
			return c.JSON(http.StatusOK, echo.Map{"success": true, "plan": echo.Map{"_id": c.Param("id"), "title": "Kyoto"}})
		})
	})
	obj, err := newClient(srv, 2).FetchPlan(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if obj["_id"] != "abc123" || obj["title"] != "Kyoto" {
		t.Fatalf("expected unwrapped plan, got=%v", obj)
	}
	if owner != 1 {
		t.Fatalf("401 must not be retried, got=%d calls", owner)
	}
}

func TestFetchPlan_ReportsUnauthorizedWhenNothingAnswers(t *testing.T) {
	srv := newServer(t, func(e *echo.Echo) {
		e.GET("/api/travel-plans/:id", func(c echo.Context) error { return c.NoContent(http.StatusUnauthorized) })
	})
	_, err := newClient(srv, 0).FetchPlan(context.Background(), "p")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got=%v", err)
	}

	srv = newServer(t, func(e *echo.Echo) {})
	_, err = newClient(srv, 0).FetchPlan(context.Background(), "p")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got=%v", err)
	}
}

func TestDeleteActivity_Classification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		outcome DeleteOutcome
	}{
		{"confirmed", 200, `{"success":true}`, DeleteConfirmed},
		{"no content", 204, ``, DeleteConfirmed},
		{"not found", 404, `{"message":"no such activity"}`, DeleteNotFound},
		{"unverified", 200, `{"success":true,"db_verification":false}`, DeleteUnverified},
		{"permission", 200, `{"success":false,"error_code":"permission_denied"}`, DeleteRejected},
		{"forbidden", 403, `{"error_code":"permission_denied"}`, DeleteRejected},
		{"server error", 500, `oops`, DeleteRejected},
		{"unauthorized", 401, ``, DeleteUnauthorized},
		{"garbage", 200, `<html>`, DeleteTransportFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := newServer(t, func(e *echo.Echo) {
				e.DELETE("/api/travel-plans/:pid/activities/:aid", func(c echo.Context) error {
					atomic.AddInt32(&calls, 1)
					if tc.body == "" {
						return c.NoContent(tc.status)
					}
					return c.Blob(tc.status, echo.MIMEApplicationJSON, []byte(tc.body))
				})
			})
			res := newClient(srv, 2).DeleteActivity(context.Background(), "p1", Ref("2b7e1516-28ae-4d2a-a6d2-8f3c8a8f0f11"))
			if res.Outcome != tc.outcome {
				t.Fatalf("expected %v, got=%v (%+v)", tc.outcome, res.Outcome, res)
			}
			if calls != 1 {
				t.Fatalf("delete must not be retried, got=%d calls", calls)
			}
		})
	}
}

func TestDeleteActivity_TransportFailure(t *testing.T) {
	srv := newServer(t, func(e *echo.Echo) {})
	cl := newClient(srv, 0)
	srv.Close()
	res := cl.DeleteActivity(context.Background(), "p1", Ref("a1"))
	if res.Outcome != DeleteTransportFailure || res.Err == nil {
		t.Fatalf("expected transport failure, got=%+v", res)
	}
}

func TestDeleteActivity_PositionalPath(t *testing.T) {
	var hit string
	srv := newServer(t, func(e *echo.Echo) {
		e.DELETE("/api/travel-plans/:pid/days/:d/activities/:a", func(c echo.Context) error {
			hit = c.Param("pid") + "/" + c.Param("d") + "/" + c.Param("a")
			return c.NoContent(http.StatusNotFound)
		})
	})
	cl := newClient(srv, 0)
	res := cl.DeleteActivity(context.Background(), "p1", Ref("idx-0-2"))
	if res.Outcome != DeleteNotFound || hit != "p1/0/2" {
		t.Fatalf("expected positional 404, got=%v hit=%q", res.Outcome, hit)
	}
	// the slot at removal time wins over the one in the id
	cl.DeleteActivity(context.Background(), "p1", ActivityRef{ID: "idx-0-2", Day: 0, Slot: 1})
	if hit != "p1/0/1" {
		t.Fatalf("expected current slot to be addressed, hit=%q", hit)
	}
}

func TestAddActivity_SendsDayIndex(t *testing.T) {
	var got struct {
		DayIndex int            `json:"day_index"`
		Activity map[string]any `json:"activity"`
	}
	srv := newServer(t, func(e *echo.Echo) {
		e.POST("/api/travel-plans/:pid/activities", func(c echo.Context) error {
			if err := c.Bind(&got); err != nil {
				return err
			}
			return c.JSON(http.StatusCreated, echo.Map{"success": true, "activity": echo.Map{"id": "new-1", "name": got.Activity["name"]}})
		})
	})
	obj, err := newClient(srv, 0).AddActivity(context.Background(), "p1", 1, entities.Activity{Name: "Tea", DurationMinutes: 30})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.DayIndex != 1 || obj["id"] != "new-1" || obj["name"] != "Tea" {
		t.Fatalf("unexpected exchange %+v / %v", got, obj)
	}
	if _, ok := got.Activity["lat"]; ok {
		t.Fatalf("activity without coordinates must not send lat")
	}
}

func TestLoginAndProfile(t *testing.T) {
	srv := newServer(t, func(e *echo.Echo) {
		e.POST("/api/auth/login", func(c echo.Context) error {
			var in map[string]string
			_ = c.Bind(&in)
			if in["password"] != "secret" {
				return c.JSON(http.StatusOK, echo.Map{"success": false, "message": "bad credentials"})
			}
			return c.JSON(http.StatusOK, echo.Map{"success": true, "token": "jwt-1", "user_id": "u1"})
		})
		e.GET("/api/auth/profile", func(c echo.Context) error {
			return c.JSON(http.StatusOK, echo.Map{"success": true, "user": echo.Map{"email": "a@b.c", "profile": echo.Map{"display_name": "Aki"}}})
		})
	})
	cl := newClient(srv, 0)
	acc, err := cl.Login(context.Background(), "a@b.c", "secret")
	if err != nil || acc.Token != "jwt-1" || acc.UserID != "u1" || acc.Email != "a@b.c" {
		t.Fatalf("unexpected login %+v err=%v", acc, err)
	}
	if _, err := cl.Login(context.Background(), "a@b.c", "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got=%v", err)
	}
	prof, err := cl.Profile(context.Background())
	if err != nil || prof.Name != "Aki" || prof.Email != "a@b.c" {
		t.Fatalf("unexpected profile %+v err=%v", prof, err)
	}
}

func TestPublicPlansQuery(t *testing.T) {
	var q map[string]string
	srv := newServer(t, func(e *echo.Echo) {
		e.GET("/api/travel-plans/public", func(c echo.Context) error {
			q = map[string]string{}
			for k, v := range c.QueryParams() {
				q[k] = v[0]
			}
			return c.JSON(http.StatusOK, []any{echo.Map{"id": "x"}})
		})
	})
	plans, err := newClient(srv, 0).PublicPlans(context.Background(), PublicQuery{Page: 2, Limit: 10, SortBy: "created_at", SortOrder: "desc", IncludeActivities: true})
	if err != nil || len(plans) != 1 {
		t.Fatalf("unexpected %v %v", plans, err)
	}
	if q["page"] != "2" || q["limit"] != "10" || q["sortBy"] != "created_at" || q["include_activities"] != "true" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestDiagnose(t *testing.T) {
	srv := newServer(t, func(e *echo.Echo) {
		e.GET("/api/health-check", func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"ok": true}) })
		e.GET("/api/auth/verify", func(c echo.Context) error { return c.NoContent(http.StatusUnauthorized) })
		e.GET("/api/travel-plans", func(c echo.Context) error { return c.JSON(http.StatusOK, []any{}) })
	})
	checks := newClient(srv, 0).Diagnose(context.Background())
	if len(checks) != 3 || !checks[0].OK || checks[1].OK || checks[1].Status != 401 || !checks[2].OK {
		t.Fatalf("unexpected checks %+v", checks)
	}
}
