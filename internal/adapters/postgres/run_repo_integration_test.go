//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orchardgap/internal/adapters/postgres"
	"github.com/samirrijal/orchardgap/internal/core/domain"
	"github.com/samirrijal/orchardgap/internal/pkg/config"
)

// setupTestDB connects to the database named in the test config. The
// migrations must already be applied.
func setupTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	cfg, err := config.Load("orchardgap-test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestRunRepo_SaveAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewRunRepo(db)
	ctx := context.Background()

	orchardID := time.Now().UnixNano() % 1_000_000_000
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM imputation_runs WHERE orchard_id = $1`, orchardID)
	})

	latest, err := repo.Latest(ctx, orchardID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Now().UTC().Truncate(time.Microsecond)
	older := &domain.ImputationRun{
		ID: uuid.NewString(), OrchardID: orchardID, SurveyID: 1,
		TreeCount: 24, TreeRadius: 1.2, MinTreeRadius: 0.9,
		MissingTrees: []domain.GeoPoint{},
		Duration:     3 * time.Millisecond, CreatedAt: base,
	}
	newer := &domain.ImputationRun{
		ID: uuid.NewString(), OrchardID: orchardID, SurveyID: 2,
		TreeCount: 24, TreeRadius: 1.2, MinTreeRadius: 0.9,
		MissingTrees: []domain.GeoPoint{{Lat: -32.3287, Lon: 18.8258}, {Lat: -32.3288, Lon: 18.8259}},
		Duration:     4 * time.Millisecond, CreatedAt: base.Add(time.Minute),
	}
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))
	require.NoError(t, repo.Save(ctx, newer), "saving twice is a no-op")

	runs, err := repo.ListByOrchard(ctx, orchardID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, newer.MissingTrees, runs[0].MissingTrees)
	assert.Equal(t, newer.Duration, runs[0].Duration)
	assert.Empty(t, runs[1].MissingTrees)

	latest, err = repo.Latest(ctx, orchardID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.SurveyID)
}
