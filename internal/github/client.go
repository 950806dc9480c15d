// internal/github/client.go
package github

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	apperrors "portfolio-sync/internal/errors"
	"portfolio-sync/internal/model"
)

// perPage is the largest page GitHub serves in one call. Listing stops after
// the first page: accounts with more repositories than this are truncated, a
// known limitation the fetch logs when it likely applies.
const perPage = 100

// descriptionPlaceholder substitutes for repositories without a description.
const descriptionPlaceholder = "No description available"

// requestTimeout bounds every provider call client-side. Without it a stalled
// connection would hang a sync pass for as long as it holds the sync lock.
const requestTimeout = 30 * time.Second

// Client fetches a user's public repositories, wrapping the go-github client.
type Client struct {
	gh       *github.Client
	logger   *slog.Logger
	username string
}

// NewClient creates a Client for the given account. The token is optional:
// the listing endpoint is public and the token only raises rate limits.
func NewClient(username, token string, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: requestTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient.Transport = &oauth2.Transport{Source: ts}
	}

	return &Client{
		gh:       github.NewClient(httpClient),
		logger:   logger,
		username: username,
	}
}

// SetBaseURL points the client at an alternate API root, for tests running
// against a stub server.
func (c *Client) SetBaseURL(rawURL string) error {
	gh, err := c.gh.WithEnterpriseURLs(rawURL, rawURL)
	if err != nil {
		return err
	}
	c.gh = gh
	return nil
}

// FetchRepositories lists the account's repositories and returns the public,
// non-fork ones translated to the internal shape. It does not retry; retry
// policy belongs to the caller's schedule.
func (c *Client) FetchRepositories(ctx context.Context) ([]model.RawRepo, error) {
	opts := &github.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	repos, _, err := c.gh.Repositories.ListByUser(ctx, c.username, opts)
	if err != nil {
		return nil, toFetchError(err)
	}

	if len(repos) == perPage {
		c.logger.Warn("Fetched a full page of repositories; results beyond the first page are not listed",
			"username", c.username, "page_size", perPage)
	}

	out := make([]model.RawRepo, 0, len(repos))
	for _, r := range repos {
		if r.GetPrivate() || r.GetFork() {
			continue
		}
		out = append(out, toRawRepo(r))
	}
	return out, nil
}

// toRawRepo translates a github.Repository into our internal model.RawRepo.
func toRawRepo(r *github.Repository) model.RawRepo {
	description := r.GetDescription()
	if description == "" {
		description = descriptionPlaceholder
	}

	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}

	return model.RawRepo{
		SourceID:    r.GetID(),
		Name:        r.GetName(),
		Description: description,
		URL:         r.GetHTMLURL(),
		Homepage:    r.GetHomepage(),
		Language:    r.Language,
		Stars:       r.GetStargazersCount(),
		Topics:      topics,
		UpdatedAt:   r.GetUpdatedAt().Time,
		CreatedAt:   r.GetCreatedAt().Time,
	}
}

// toFetchError maps go-github failures onto the local error taxonomy.
func toFetchError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.FetchError{
			Status:      rateErr.Response.StatusCode,
			Message:     "GitHub API rate limit exceeded",
			RateLimited: true,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &apperrors.FetchError{
			Status:      abuseErr.Response.StatusCode,
			Message:     "GitHub API secondary rate limit hit",
			RateLimited: true,
		}
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		return &apperrors.FetchError{
			Status:  ghErr.Response.StatusCode,
			Message: ghErr.Message,
		}
	}

	return &apperrors.FetchError{Message: err.Error()}
}
