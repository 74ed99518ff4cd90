package main

import (
	"fmt"
	"log/slog"
	"os"

	"agentdeck/internal/api"
	"agentdeck/internal/cache"
	"agentdeck/internal/config"
	"agentdeck/internal/export"
	"agentdeck/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentdeck:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	var store *cache.Store
	if !cfg.NoCache {
		store, err = cache.Open(cfg.CachePath)
		if err != nil {
			// Cache is an accelerator, not a requirement.
			log.Warn("cache unavailable", "path", cfg.CachePath, "err", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	exporter, err := export.New(cfg.ExportDir)
	if err != nil {
		return err
	}

	client := api.New(cfg.BackendURL)
	model := ui.NewModel(cfg, client, store, exporter, log)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
