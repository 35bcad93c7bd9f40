package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/orchardgap/internal/adapters/nats"
	"github.com/samirrijal/orchardgap/internal/bootstrap"
	"github.com/samirrijal/orchardgap/internal/pkg/config"
	"github.com/samirrijal/orchardgap/internal/pkg/logging"
	"github.com/samirrijal/orchardgap/internal/pkg/telemetry"
	"github.com/samirrijal/orchardgap/internal/workflows"
)

func main() {
	cfg, err := config.Load("orchardgap-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", "worker"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	svc, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer svc.Close()

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.RecomputeOrchardsWorkflow)
	w.RegisterActivity(&workflows.Activities{Imputation: svc.Imputation})

	// Survey updates start a recompute of the orchard.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, survey updates will not trigger recomputes", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribeSurveyUpdates(ctx, func(ctx context.Context, orchardID int64) error {
			run, err := workflows.StartRecompute(ctx, c, cfg.Temporal.TaskQueue, orchardID)
			if err != nil {
				slog.Error("start recompute failed", "orchard_id", orchardID, "error", err)
				return err
			}
			slog.Info("recompute started", "orchard_id", orchardID, "workflow_id", run.GetID(), "run_id", run.GetRunID())
			return nil
		})
		if err != nil {
			slog.Warn("survey update subscription failed", "error", err)
		}
	}

	slog.Info("worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
