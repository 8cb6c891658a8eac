package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"travo/config"
	"travo/database"
	"travo/router"

	// Auth + session
	authCtrlImp "travo/pkg/auth/controllerImp"
	sessRepoImp "travo/pkg/session/repositoryImp"
	sessSvcImp "travo/pkg/session/serviceImp"

	// Plans
	"travo/pkg/backend"
	"travo/pkg/deletion"
	"travo/pkg/itinerary"
	"travo/pkg/notify"
	"travo/pkg/places"
	planCtrlImp "travo/pkg/plan/controllerImp"
	planSvcImp "travo/pkg/plan/serviceImp"
	"travo/pkg/planview"
	"travo/pkg/sweep"
	syncRepoImp "travo/pkg/synclog/repositoryImp"
	"travo/pkg/widget"

	// Health
	healthCtrlImp "travo/pkg/health/controllerImp"
)

func main() {
	// 1) Config + log levels
	cfg := config.Load()
	lvl := cfg.Level()
	log.SetLevel(lvl)
	backend.SetLogLevel(lvl)
	itinerary.SetLogLevel(lvl)
	deletion.SetLogLevel(lvl)
	places.SetLogLevel(lvl)
	widget.SetLogLevel(lvl)
	sessSvcImp.SetLogLevel(lvl)
	planSvcImp.SetLogLevel(lvl)
	sweep.SetLogLevel(lvl)

	// 2) DB (sqlite): session + divergence ledger
	db := database.OpenSQLite(cfg.DBPath)

	// 3) Backend client; the token comes from the stored session
	sessRepo := sessRepoImp.New(db)
	api := backend.NewHTTP(backend.Config{
		BaseURL:      cfg.APIBaseURL,
		Timeout:      cfg.APITimeout,
		ReadRetries:  cfg.ReadRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, sessSvcImp.TokenSource(sessRepo))
	sess := sessSvcImp.New(sessRepo, api)
	if s, err := sess.Current(); err == nil {
		log.Infof("[session] restored session for %s", s.Email)
	}

	// 4) Places (mock fallback) + map script
	var pl places.Provider
	if cfg.PlacesEndpoint != "" {
		pl = places.NewHTML(cfg.PlacesEndpoint, cfg.APITimeout)
	} else {
		pl = places.NewMock()
	}
	maps := widget.NewLoader(cfg.MapsScriptURL, cfg.APITimeout)
	if cfg.MapsScriptURL != "" {
		maps.Start()
	}

	// 5) Plan service
	notes := notify.NewRecorder(50)
	loc := cfg.Location()
	pSvc := planSvcImp.NewPlanService(api, planview.NewRegistry(), syncRepoImp.New(db), pl,
		notify.Multi{notes, notify.NewLog(log.New("notify"))},
		itinerary.Options{
			Now:                func() time.Time { return time.Now().In(loc) },
			MaxSynthesizedDays: cfg.MaxSynthDays,
		})

	// 6) Ledger sweep
	var sweeper *sweep.Scheduler
	if cfg.SyncSweep != "" {
		sw, err := sweep.New(cfg.SyncSweep, loc, cfg.APITimeout*4, pSvc.SweepLedger)
		if err != nil {
			log.Fatalf("[cfg] SYNC_SWEEP: %v", err)
		}
		sweeper = sw
		sweeper.Start()
	}

	// 7) Echo
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(lvl)
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			c.Logger().Debugf("%s %s -> %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))

	r := router.New(
		e,
		sess,
		authCtrlImp.NewAuthController(sess),
		planCtrlImp.NewPlanCtrl(pSvc, sess, notes, maps),
		healthCtrlImp.NewHealthCtrl(db, api),
	)

	// 8) Start
	go func() {
		log.Infof("listening on :%s", cfg.Port)
		if err := r.Start(":" + cfg.Port); err != nil {
			log.Infof("server stopped: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if sweeper != nil {
		sweeper.Stop(ctx)
	}
	if err := r.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
