package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/orchardgap/internal/pkg/config"
)

// migrations are applied in order by up and reverted in reverse by down.
var migrations = []string{
	"migrations/001_imputation_runs.sql",
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("orchardgap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	switch os.Args[1] {
	case "up":
		apply(ctx, pool, migrations)
		log.Println("all migrations applied")
	case "down":
		apply(ctx, pool, downFiles(migrations))
		log.Println("all migrations reverted")
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// downFiles maps each migration to its .down.sql twin, last first.
func downFiles(up []string) []string {
	down := make([]string, 0, len(up))
	for i := len(up) - 1; i >= 0; i-- {
		down = append(down, strings.TrimSuffix(up[i], ".sql")+".down.sql")
	}
	return down
}

func apply(ctx context.Context, pool *pgxpool.Pool, files []string) {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		if _, err := pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}
}
