package widget

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestReady_LoadsOnceForConcurrentCallers(t *testing.T) {
	var calls int32
	e := echo.New()
	e.GET("/maps.js", func(c echo.Context) error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return c.Blob(http.StatusOK, "application/javascript", []byte("window.maps={}"))
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	l := NewLoader(srv.URL+"/maps.js", time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Ready(context.Background()); err != nil {
				t.Errorf("ready: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one fetch, got=%d", n)
	}
	if string(l.Script()) != "window.maps={}" {
		t.Fatalf("unexpected script %q", l.Script())
	}
}

func TestReady_FailureThenReset(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	e := echo.New()
	e.GET("/maps.js", func(c echo.Context) error {
		if fail.Load() {
			return c.NoContent(http.StatusBadGateway)
		}
		return c.String(http.StatusOK, "ok")
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	l := NewLoader(srv.URL+"/maps.js", time.Second)
	if err := l.Ready(context.Background()); err == nil {
		t.Fatalf("expected load failure")
	}
	fail.Store(false)
	if err := l.Ready(context.Background()); err == nil {
		t.Fatalf("failure should stick until Reset")
	}
	l.Reset()
	if err := l.Ready(context.Background()); err != nil {
		t.Fatalf("expected success after reset, got=%v", err)
	}
}

func TestReady_ContextAndDisabled(t *testing.T) {
	block := make(chan struct{})
	e := echo.New()
	e.GET("/slow.js", func(c echo.Context) error {
		<-block
		return c.String(http.StatusOK, "")
	})
	srv := httptest.NewServer(e)
	defer srv.Close()
	defer close(block)

	l := NewLoader(srv.URL+"/slow.js", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.Ready(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got=%v", err)
	}

	if err := NewLoader("", 0).Ready(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got=%v", err)
	}
}
