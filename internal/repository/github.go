package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"
)

// ErrRepositoryNotFound is returned when GitHub does not know the repository
// or the token cannot see it.
var ErrRepositoryNotFound = errors.New("repository not found")

// Info is the subset of GitHub metadata kept for a team's repository.
type Info struct {
	FullName      string `json:"fullName"`
	DefaultBranch string `json:"defaultBranch"`
	HTMLURL       string `json:"htmlUrl"`
	Private       bool   `json:"private"`
	Archived      bool   `json:"archived"`
}

// Resolver looks up repositories through the GitHub REST API.
type Resolver struct {
	client *github.Client
	logger *zap.Logger
}

// NewResolver creates a Resolver. baseURL selects a GitHub Enterprise
// instance; an empty token makes unauthenticated requests.
func NewResolver(token, baseURL string, logger *zap.Logger) (*Resolver, error) {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		var err error
		if client, err = client.WithEnterpriseURLs(baseURL, baseURL); err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}
	return NewResolverWithClient(client, logger), nil
}

// NewResolverWithClient wraps an existing go-github client.
func NewResolverWithClient(client *github.Client, logger *zap.Logger) *Resolver {
	return &Resolver{client: client, logger: logger.Named("github")}
}

// Resolve fetches metadata for ref.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Info, error) {
	repo, resp, err := r.client.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return Info{}, fmt.Errorf("%w: %s", ErrRepositoryNotFound, ref)
		}
		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			r.logger.Warn("GitHub rate limit reached", zap.Time("reset", rateErr.Rate.Reset.Time))
		}
		return Info{}, fmt.Errorf("failed to fetch repository %s: %w", ref, err)
	}

	info := Info{
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
		HTMLURL:       repo.GetHTMLURL(),
		Private:       repo.GetPrivate(),
		Archived:      repo.GetArchived(),
	}
	r.logger.Debug("Resolved repository", zap.String("repo", info.FullName), zap.String("branch", info.DefaultBranch))
	return info, nil
}
