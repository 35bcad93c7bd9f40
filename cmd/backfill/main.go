package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/samirrijal/orchardgap/internal/bootstrap"
	"github.com/samirrijal/orchardgap/internal/core/domain"
	"github.com/samirrijal/orchardgap/internal/pkg/config"
	"github.com/samirrijal/orchardgap/internal/pkg/logging"
)

const maxConcurrent = 4

// Manifest lists the orchards to recompute.
type Manifest struct {
	Source   string         `json:"source"`
	Orchards []OrchardEntry `json:"orchards"`
}

type OrchardEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

type outcome struct {
	id      int64
	missing int
	err     error
}

func main() {
	cfg, err := config.Load("orchardgap-backfill")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", "backfill"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}
	manifest, err := loadManifest(manifestPath)
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}

	// Filter orchards (optional CLI arg: comma separated IDs)
	var filter map[int64]bool
	if len(os.Args) > 2 {
		filter, err = parseFilter(os.Args[2])
		if err != nil {
			log.Fatalf("filter: %v", err)
		}
	}
	orchards := selectOrchards(manifest.Orchards, filter)

	svc, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer svc.Close()

	slog.Info("backfill starting", "source", manifest.Source, "orchards", len(orchards))
	started := time.Now()

	results := backfill(ctx, svc.Imputation, orchards, maxConcurrent)

	var failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			slog.Error("orchard failed", "orchard_id", r.id, "error", r.err)
		}
	}
	slog.Info("backfill complete",
		"succeeded", len(results)-failed,
		"failed", failed,
		"duration", time.Since(started))
	if failed > 0 {
		os.Exit(1)
	}
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, o := range m.Orchards {
		if o.ID <= 0 {
			return nil, fmt.Errorf("orchard %d: id must be positive, got %d", i, o.ID)
		}
	}
	return &m, nil
}

func parseFilter(arg string) (map[int64]bool, error) {
	filter := map[int64]bool{}
	for _, s := range strings.Split(arg, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("orchard id %q: %w", s, err)
		}
		filter[id] = true
	}
	return filter, nil
}

// selectOrchards drops duplicates and, when filter is non-empty, orchards
// not in it.
func selectOrchards(entries []OrchardEntry, filter map[int64]bool) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, e := range entries {
		if seen[e.ID] || (len(filter) > 0 && !filter[e.ID]) {
			continue
		}
		seen[e.ID] = true
		ids = append(ids, e.ID)
	}
	return ids
}

type recomputer interface {
	Recompute(ctx context.Context, orchardID int64) (*domain.ImputationRun, error)
}

// backfill recomputes every orchard with at most limit in flight. Results
// are in input order.
func backfill(ctx context.Context, svc recomputer, ids []int64, limit int64) []outcome {
	results := make([]outcome, len(ids))
	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup

	for i, id := range ids {
		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			for j := i; j < len(ids); j++ {
				results[j] = outcome{id: ids[j], err: err}
			}
			break
		}
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			defer sem.Release(1)

			run, err := svc.Recompute(ctx, id)
			if err != nil {
				results[i] = outcome{id: id, err: err}
				return
			}
			slog.Info("orchard recomputed", "orchard_id", id, "missing_trees", len(run.MissingTrees))
			results[i] = outcome{id: id, missing: len(run.MissingTrees)}
		}(i, id)
	}

	wg.Wait()
	return results
}
