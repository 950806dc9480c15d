//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"portfolio-sync/internal/github"
	"portfolio-sync/internal/store"
	"portfolio-sync/internal/syncer"
)

func setupTestDatabase(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(context.Background()))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestSync_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pool := setupTestDatabase(ctx, t)

	// Mock GitHub listing: the payload is swapped between passes.
	payload := `[
		{"id": 100, "name": "alpha", "description": "first", "html_url": "u1", "stargazers_count": 2, "topics": ["go"]},
		{"id": 101, "name": "beta", "html_url": "u2"},
		{"id": 102, "name": "hidden-fork", "fork": true}
	]`
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/test-user/repos") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ghClient := github.NewClient("test-user", "", logger)
	require.NoError(t, ghClient.SetBaseURL(server.URL))

	projectStore := store.New(pool, 15)
	appSyncer := syncer.New(projectStore, ghClient, logger, "test-user", time.Hour)

	// --- First pass ---
	result, err := appSyncer.Sync(ctx, false)
	require.NoError(t, err)
	assert.True(t, result.Synced)
	assert.Equal(t, 2, result.Count, "fork is filtered out")

	all, err := projectStore.AllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "No description available", all[1].Description)

	// --- Immediate second trigger is gated ---
	result, err = appSyncer.Sync(ctx, false)
	require.NoError(t, err)
	assert.False(t, result.Synced)
	assert.Greater(t, result.NextSyncInMinutes, 0)

	// --- Forced pass: beta disappeared, alpha renamed ---
	payload = `[{"id": 100, "name": "alpha-renamed", "description": "first", "html_url": "u1", "stargazers_count": 7}]`

	result, err = appSyncer.Sync(ctx, true)
	require.NoError(t, err)
	assert.True(t, result.Synced)

	all, err = projectStore.AllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "disappeared projects are hidden, not deleted")
	assert.Equal(t, "alpha-renamed", all[0].Name)
	assert.Equal(t, 7, all[0].Stars)
	assert.True(t, all[0].IsVisible)
	assert.Equal(t, "beta", all[1].Name)
	assert.False(t, all[1].IsVisible)
}
