package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samirrijal/orchardgap/internal/adapters/aerobotics"
	natsadapter "github.com/samirrijal/orchardgap/internal/adapters/nats"
	"github.com/samirrijal/orchardgap/internal/adapters/postgres"
	"github.com/samirrijal/orchardgap/internal/pkg/config"
	"github.com/samirrijal/orchardgap/internal/pkg/logging"
)

const maxConcurrentPolls = 8

// Manifest lists the orchards to watch, in the backfill format.
type Manifest struct {
	Source   string `json:"source"`
	Orchards []struct {
		ID int64 `json:"id"`
	} `json:"orchards"`
}

func main() {
	cfg, err := config.Load("orchardgap-watcher")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", "watcher"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}
	orchards := make([]int64, 0, len(manifest.Orchards))
	for _, o := range manifest.Orchards {
		orchards = append(orchards, o.ID)
	}

	provider, err := aerobotics.New(aerobotics.Config{
		BaseURL:        cfg.Aerobotics.BaseURL,
		AuthToken:      cfg.Aerobotics.AuthToken,
		Timeout:        cfg.Aerobotics.RequestTimeout(),
		RequestsPerSec: cfg.Aerobotics.RequestsPerSec,
		PageSize:       cfg.Aerobotics.PageSize,
	})
	if err != nil {
		log.Fatalf("survey provider: %v", err)
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	w := newWatcher(provider, nil, pub)
	if db, err := postgres.New(ctx, cfg.Database.DSN()); err != nil {
		slog.Warn("database unavailable, first poll only records surveys", "error", err)
	} else {
		defer db.Close()
		w.runs = postgres.NewRunRepo(db)
	}

	interval := cfg.Watcher.PollInterval()
	slog.Info("survey watcher started", "orchards", len(orchards), "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once immediately
	for {
		updates := w.pollAll(ctx, orchards, maxConcurrentPolls)
		slog.Info("poll complete", "updates", updates)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("survey watcher stopped")
			return
		}
	}
}
