package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

type AppConfig struct {
	Port     string
	Timezone string
	DBPath   string
	LogLevel string

	APIBaseURL   string
	APITimeout   time.Duration
	ReadRetries  int
	RetryBackoff time.Duration

	PlacesEndpoint string
	MapsScriptURL  string
	MaxSynthDays   int

	// cron spec for the divergence ledger sweep; empty or "off" disables it
	SyncSweep string
}

func Load() AppConfig {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Infof("[cfg] No .env file found or error loading: %v", err)
	}

	get := func(k, def string) string {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
		return def
	}
	getInt := func(k string, def int) int {
		v, err := strconv.Atoi(get(k, ""))
		if err != nil {
			return def
		}
		return v
	}
	ms := func(k string, def int) time.Duration {
		return time.Duration(getInt(k, def)) * time.Millisecond
	}
	cfg := AppConfig{
		Port:           get("PORT", "8080"),
		Timezone:       get("TZ", "UTC"),
		DBPath:         get("DB_PATH", "travo.db"),
		LogLevel:       strings.ToLower(get("LOG_LEVEL", "info")),
		APIBaseURL:     get("API_BASE_URL", "http://localhost:5001/api"),
		APITimeout:     ms("API_TIMEOUT_MS", 10000),
		ReadRetries:    getInt("API_READ_RETRIES", 2),
		RetryBackoff:   ms("API_RETRY_BACKOFF_MS", 1000),
		PlacesEndpoint: get("PLACES_ENDPOINT", ""),
		MapsScriptURL:  get("MAPS_SCRIPT_URL", ""),
		MaxSynthDays:   getInt("MAX_SYNTH_DAYS", 366),
		SyncSweep:      get("SYNC_SWEEP", "@every 10m"),
	}
	if strings.EqualFold(cfg.SyncSweep, "off") {
		cfg.SyncSweep = ""
	}
	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = 0
	}
	log.Infof("[cfg] %+v", cfg.redacted())
	return cfg
}

// redacted hides credentials that may ride along in URLs.
func (c AppConfig) redacted() AppConfig {
	c.APIBaseURL = redactURL(c.APIBaseURL)
	c.PlacesEndpoint = redactURL(c.PlacesEndpoint)
	c.MapsScriptURL = redactURL(c.MapsScriptURL)
	return c
}

func redactURL(s string) string {
	i := strings.IndexByte(s, '?')
	if i < 0 {
		return s
	}
	return s[:i] + "?…"
}

// Level maps LOG_LEVEL onto gommon levels; unknown values mean info.
func (c AppConfig) Level() log.Lvl {
	switch c.LogLevel {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

// Location is the configured timezone, UTC if it does not load.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Warnf("[cfg] timezone %q: %v; using UTC", c.Timezone, err)
		return time.UTC
	}
	return loc
}
