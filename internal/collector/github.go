package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	apperrors "github.com/nikhilgg/oss-transparency/internal/errors"
	"github.com/nikhilgg/oss-transparency/internal/domain"
	"github.com/nikhilgg/oss-transparency/internal/ghclient"
	"github.com/nikhilgg/oss-transparency/internal/tokens"
)

// repoQuery fetches repo meta, the last 100 PRs (with first review), and the
// last 100 bug-labeled issues in a single API call. Contributors stay REST:
// there is no GraphQL equivalent.
const repoQuery = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    databaseId
    name
    nameWithOwner
    defaultBranchRef { name }
    createdAt
    updatedAt
    pushedAt
    stargazerCount
    forkCount
    primaryLanguage { name }
    isArchived
    isFork
    licenseInfo { spdxId }
    openIssues: issues(states: OPEN) { totalCount }

    pullRequests(last: 100, orderBy: {field: UPDATED_AT, direction: DESC}) {
      nodes {
        number
        createdAt
        closedAt
        mergedAt
        authorAssociation
        reviews(first: 1) {
          nodes { createdAt }
        }
      }
    }

    bugIssues: issues(last: 100, labels: ["bug"], orderBy: {field: UPDATED_AT, direction: DESC}) {
      nodes {
        number
        createdAt
        closedAt
        state
        comments { totalCount }
      }
    }
  }
}
`

// ContributorSource lists a repository's contributors. Implemented with the
// REST API; replaceable in tests.
type ContributorSource interface {
	ListContributors(ctx context.Context, owner, name string) ([]domain.ContributorRow, error)
}

// GitHubCollector collects activity signals for one repository per unit:
// metadata, pull requests, and bug issues via GraphQL, contributors via REST.
// Archived repositories and forks are recorded as skipped and contribute no
// rows to any output table.
type GitHubCollector struct {
	client   *ghclient.Client
	contribs ContributorSource
	logger   *slog.Logger
}

// NewGitHubCollector creates the GitHub collection handler
func NewGitHubCollector(client *ghclient.Client, pool *tokens.Pool, logger *slog.Logger) *GitHubCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubCollector{
		client:   client,
		contribs: &restContributorSource{pool: pool},
		logger:   logger,
	}
}

// Stage names the collection stage
func (c *GitHubCollector) Stage() string { return "github" }

// Handle collects one repository. Every outcome becomes a checkpoint record;
// contributor listing failures degrade to an empty contributor list rather
// than failing the unit.
func (c *GitHubCollector) Handle(ctx context.Context, repoFullName string) *domain.CheckpointRecord {
	owner, name, ok := splitRepoFullName(repoFullName)
	if !ok {
		return domain.NewErroredRecord(repoFullName, "malformed repository name")
	}

	data, err := c.client.GraphQL(ctx, repoQuery, map[string]any{"owner": owner, "name": name})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domain.NewErroredRecord(repoFullName, "repository not found")
		}
		return domain.NewErroredRecord(repoFullName, err.Error())
	}

	var envelope struct {
		Repository *repoResponse `json:"repository"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return domain.NewErroredRecord(repoFullName, "malformed repository payload: "+err.Error())
	}
	if envelope.Repository == nil {
		return domain.NewErroredRecord(repoFullName, "repository not found")
	}
	repo := envelope.Repository

	if repo.IsArchived || repo.IsFork {
		return domain.NewSkippedRecord(repoFullName, "archived_or_fork")
	}

	records := &domain.ExtractedRecords{
		Meta:         extractRepoMeta(repo, repoFullName),
		PullRequests: extractPullRequests(repo, repoFullName),
		BugIssues:    extractBugIssues(repo, repoFullName),
	}

	contribs, err := c.contribs.ListContributors(ctx, owner, name)
	if err != nil {
		c.logger.Warn("contributor listing failed", "repo", repoFullName, "error", err)
	} else {
		records.Contributors = contribs
	}

	return domain.NewDoneRecord(repoFullName, records)
}

// restContributorSource lists contributors through the REST API, one page of
// 100 with anonymous contributors included. Each call authenticates with the
// currently best token and reports quota back to the pool.
type restContributorSource struct {
	pool *tokens.Pool
}

func (s *restContributorSource) ListContributors(ctx context.Context, owner, name string) ([]domain.ContributorRow, error) {
	token, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Secret})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	opts := &github.ListContributorsOptions{
		Anon:        "true",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	contribs, resp, err := gh.Repositories.ListContributors(ctx, owner, name, opts)
	if resp != nil {
		s.pool.Report(token.Name, resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
	if err != nil {
		return nil, err
	}
	return contributorRows(owner+"/"+name, contribs), nil
}

func splitRepoFullName(full string) (owner, name string, ok bool) {
	owner, name, found := strings.Cut(full, "/")
	if !found || owner == "" || name == "" {
		return "", "", false
	}
	return owner, name, true
}
