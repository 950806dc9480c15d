// internal/github/client_test.go
package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-sync/internal/errors"
)

// setupTestClient creates a httptest server and a client pointing to it.
func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient("test-user", "", logger)

	// Point the wrapped go-github client at the test server.
	testClient, err := github.NewClient(server.Client()).WithEnterpriseURLs(server.URL, server.URL)
	require.NoError(t, err)
	client.gh = testClient

	return client, server
}

func TestNewClient_BoundsRequestsWithTimeout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	anonymous := NewClient("test-user", "", logger)
	assert.Equal(t, requestTimeout, anonymous.gh.Client().Timeout)

	authenticated := NewClient("test-user", "some-token", logger)
	assert.Equal(t, requestTimeout, authenticated.gh.Client().Timeout,
		"the token transport must not drop the client-side timeout")
}

func TestClient_FetchRepositories(t *testing.T) {
	t.Run("filters private repos and forks", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// WithEnterpriseURLs prefixes paths with /api/v3.
			assert.True(t, strings.HasSuffix(r.URL.Path, "/users/test-user/repos"), r.URL.Path)
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `[
				{"id": 1, "name": "public", "html_url": "u1", "stargazers_count": 3, "topics": ["go"]},
				{"id": 2, "name": "secret", "private": true},
				{"id": 3, "name": "forked", "fork": true}
			]`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		repos, err := client.FetchRepositories(context.Background())

		require.NoError(t, err)
		require.Len(t, repos, 1)
		assert.Equal(t, int64(1), repos[0].SourceID)
		assert.Equal(t, "public", repos[0].Name)
		assert.Equal(t, 3, repos[0].Stars)
		assert.Equal(t, []string{"go"}, repos[0].Topics)
	})

	t.Run("substitutes placeholder for missing description", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `[{"id": 1, "name": "bare"}]`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		repos, err := client.FetchRepositories(context.Background())

		require.NoError(t, err)
		require.Len(t, repos, 1)
		assert.Equal(t, "No description available", repos[0].Description)
		assert.NotNil(t, repos[0].Topics, "topics default to an empty slice, not nil")
	})

	t.Run("wraps HTTP failures in FetchError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"message": "Not Found"}`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.FetchRepositories(context.Background())

		require.Error(t, err)
		var fetchErr *apperrors.FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, http.StatusNotFound, fetchErr.Status)
		assert.False(t, fetchErr.RateLimited)
	})

	t.Run("marks rate limit errors as retryable-later", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", "2524608000")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintln(w, `{"message": "API rate limit exceeded"}`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		_, err := client.FetchRepositories(context.Background())

		require.Error(t, err)
		var fetchErr *apperrors.FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.True(t, fetchErr.RateLimited)
	})

	t.Run("warns when a full page suggests truncation", func(t *testing.T) {
		entries := make([]string, 0, perPage)
		for i := 1; i <= perPage; i++ {
			entries = append(entries, fmt.Sprintf(`{"id": %d, "name": "repo-%d", "html_url": "u"}`, i, i))
		}
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "[%s]", strings.Join(entries, ","))
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		var logs bytes.Buffer
		client.logger = slog.New(slog.NewTextHandler(&logs, nil))

		repos, err := client.FetchRepositories(context.Background())

		require.NoError(t, err)
		assert.Len(t, repos, perPage, "a full page is still returned, only flagged")
		assert.Contains(t, logs.String(), "full page of repositories")
	})

	t.Run("partial page does not warn", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `[{"id": 1, "name": "only", "html_url": "u"}]`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		var logs bytes.Buffer
		client.logger = slog.New(slog.NewTextHandler(&logs, nil))

		_, err := client.FetchRepositories(context.Background())

		require.NoError(t, err)
		assert.NotContains(t, logs.String(), "full page of repositories")
	})

	t.Run("empty account yields empty list, not an error", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `[]`)
		})
		client, server := setupTestClient(t, handler)
		defer server.Close()

		repos, err := client.FetchRepositories(context.Background())

		require.NoError(t, err)
		assert.Empty(t, repos)
	})
}
