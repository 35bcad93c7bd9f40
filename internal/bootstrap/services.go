// Package bootstrap wires the imputation service from configuration for
// the binaries that run it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/orchardgap/internal/adapters/aerobotics"
	natsadapter "github.com/samirrijal/orchardgap/internal/adapters/nats"
	"github.com/samirrijal/orchardgap/internal/adapters/plot"
	"github.com/samirrijal/orchardgap/internal/adapters/postgres"
	"github.com/samirrijal/orchardgap/internal/adapters/valkey"
	"github.com/samirrijal/orchardgap/internal/core/imputer"
	"github.com/samirrijal/orchardgap/internal/core/usecases"
	"github.com/samirrijal/orchardgap/internal/pkg/config"
)

const cachePrefix = "orchardgap:"

// Services holds the imputation service and the adapters behind it.
// Optional adapters that could not be reached are nil.
type Services struct {
	Imputation *usecases.ImputationService
	DB         *postgres.DB
	Cache      *valkey.Cache
	Publisher  *natsadapter.Publisher
	Plots      *plot.FileStore

	closers []func()
}

// New builds the imputation service. The survey provider and the imputer
// are required; the database, cache, event bus and plot store are
// skipped with a warning when unavailable.
func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	provider, err := aerobotics.New(aerobotics.Config{
		BaseURL:        cfg.Aerobotics.BaseURL,
		AuthToken:      cfg.Aerobotics.AuthToken,
		Timeout:        cfg.Aerobotics.RequestTimeout(),
		RequestsPerSec: cfg.Aerobotics.RequestsPerSec,
		PageSize:       cfg.Aerobotics.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("survey provider: %w", err)
	}
	if cfg.Aerobotics.AuthToken == "" {
		slog.Warn("aerobotics auth token is empty, survey requests will be rejected")
	}

	imp, err := imputer.New(imputer.Params{
		NeighborFactor:   cfg.Imputer.NeighborFactor,
		SeparationFactor: cfg.Imputer.SeparationFactor,
		InsetFactor:      cfg.Imputer.InsetFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("imputer: %w", err)
	}

	s := &Services{}
	var opts []usecases.Option

	if db, err := postgres.New(ctx, cfg.Database.DSN()); err != nil {
		slog.Warn("database unavailable, runs will not be persisted", "error", err)
	} else {
		s.DB = db
		s.closers = append(s.closers, db.Close)
		opts = append(opts, usecases.WithRunRepository(postgres.NewRunRepo(db)))
	}

	if cache, err := valkey.New(cfg.Valkey.Addr, cachePrefix); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		s.Cache = cache
		s.closers = append(s.closers, cache.Close)
		opts = append(opts, usecases.WithCache(cache, cfg.Cache.ResultTTL))
	}

	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		s.Publisher = pub
		s.closers = append(s.closers, pub.Close)
		opts = append(opts, usecases.WithPublisher(pub))
	}

	if cfg.Plots.Enabled {
		store, err := plot.NewFileStore(cfg.Plots.Dir)
		if err != nil {
			slog.Warn("plot directory unusable, plots disabled", "dir", cfg.Plots.Dir, "error", err)
		} else {
			s.Plots = store
			opts = append(opts, usecases.WithPlotRenderer(plot.NewRenderer(store, cfg.Plots.Width)))
		}
	}

	s.Imputation = usecases.NewImputationService(provider, imp, opts...)
	return s, nil
}

// Close releases every adapter in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
