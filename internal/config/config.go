package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

const DefaultGlamourStyle = "dark"

type AppConfig struct {
	BackendURL   string
	PollInterval time.Duration
	CachePath    string
	ExportDir    string
	LogPath      string
	NoCache      bool
}

func Parse() (AppConfig, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	var cfg AppConfig

	flag.StringVar(&cfg.BackendURL, "backend", DetectBackendURL(""), "base URL of the session backend")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", 3*time.Second, "status poll interval")
	flag.StringVar(&cfg.CachePath, "cache-path", "", "path to SQLite warm-start cache")
	flag.StringVar(&cfg.ExportDir, "export-dir", "", "override export output directory")
	flag.StringVar(&cfg.LogPath, "log-path", "", "path to log file")
	flag.BoolVar(&cfg.NoCache, "no-cache", false, "skip the local cache entirely")
	flag.Parse()

	cfg.BackendURL = DetectBackendURL(cfg.BackendURL)

	if cfg.PollInterval < 500*time.Millisecond {
		cfg.PollInterval = 500 * time.Millisecond
	}

	if cfg.CachePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.CachePath = filepath.Join(home, ".local", "share", "agentdeck", "cache.sqlite")
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(filepath.Dir(cfg.CachePath), "agentdeck.log")
	}

	if !cfg.NoCache {
		if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return cfg, fmt.Errorf("create log dir: %w", err)
	}

	return cfg, nil
}

func DetectBackendURL(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv("AGENTDECK_BACKEND"); fromEnv != "" {
		return fromEnv
	}
	return "http://127.0.0.1:8315"
}
