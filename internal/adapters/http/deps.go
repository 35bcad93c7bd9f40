package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/orchardgap/internal/adapters/postgres"
	"github.com/samirrijal/orchardgap/internal/adapters/valkey"
	"github.com/samirrijal/orchardgap/internal/core/ports"
	"github.com/samirrijal/orchardgap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. Everything but
// Imputation is optional.
type Dependencies struct {
	Imputation *usecases.ImputationService
	Plots      ports.PlotStore
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache

	// RateLimit is the number of requests per minute per client IP.
	// Zero uses the default of 120.
	RateLimit int
	Version   string
	// OpenAPIPath locates the document served under /docs. Empty means
	// api/openapi.yaml relative to the working directory.
	OpenAPIPath string
}
