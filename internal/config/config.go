package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the planner service.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	Timezone    string

	Google GoogleConfig
	Sync   SyncConfig

	AgendaTime string // HH:MM for the daily agenda job; empty disables it
}

// GoogleConfig holds OAuth client settings for the calendar provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// SyncConfig controls calendar reconciliation behavior.
type SyncConfig struct {
	Enabled       bool
	OnlyScheduled bool
	CalendarID    string
}

// Load reads configuration from the environment (and an optional .env file)
// with sane defaults.
func Load() (Config, error) {
	// A missing .env is fine; explicit env vars always win.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", "taskplanner.db"),
		Timezone:    getenv("TIMEZONE", "UTC"),
		Google: GoogleConfig{
			ClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
			RedirectURL:  getenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		},
		Sync: SyncConfig{
			Enabled:       parseBool(os.Getenv("SYNC_ENABLED"), true),
			OnlyScheduled: parseBool(os.Getenv("SYNC_ONLY_SCHEDULED"), true),
			CalendarID:    getenv("GOOGLE_CALENDAR_ID", "primary"),
		},
		AgendaTime: strings.TrimSpace(os.Getenv("AGENDA_TIME")),
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return cfg, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if cfg.Sync.Enabled && (cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "") {
		return cfg, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required when SYNC_ENABLED=true")
	}

	return cfg, nil
}

// Location resolves the configured planning timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBool(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}
