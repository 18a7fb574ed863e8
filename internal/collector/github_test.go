package collector

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilgg/oss-transparency/internal/domain"
)

type fakeContributorSource struct {
	rows []domain.ContributorRow
	err  error
}

func (s *fakeContributorSource) ListContributors(ctx context.Context, owner, name string) ([]domain.ContributorRow, error) {
	return s.rows, s.err
}

const repoPayload = `{"data":{"repository":{
	"databaseId": 42,
	"name": "demo",
	"nameWithOwner": "owner/demo",
	"defaultBranchRef": {"name": "main"},
	"createdAt": "2020-01-01T00:00:00Z",
	"stargazerCount": 100,
	"forkCount": 12,
	"primaryLanguage": {"name": "Python"},
	"isArchived": false,
	"isFork": false,
	"licenseInfo": {"spdxId": "MIT"},
	"openIssues": {"totalCount": 7},
	"pullRequests": {"nodes": [
		{"number": 1, "createdAt": "2026-01-01T00:00:00Z", "mergedAt": "2026-01-02T00:00:00Z",
		 "authorAssociation": "MEMBER", "reviews": {"nodes": [{"createdAt": "2026-01-01T06:00:00Z"}]}}
	]},
	"bugIssues": {"nodes": [
		{"number": 9, "createdAt": "2026-01-01T00:00:00Z", "state": "OPEN", "comments": {"totalCount": 2}}
	]}
}}}`

func newTestGitHubCollector(t *testing.T, graphqlHandler http.HandlerFunc, contribs ContributorSource) *GitHubCollector {
	t.Helper()
	client := graphqlTestClient(t, graphqlHandler)
	c := NewGitHubCollector(client, nil, nil)
	c.contribs = contribs
	return c
}

func TestGitHubHandle_CollectsAllRecordKinds(t *testing.T) {
	contribs := &fakeContributorSource{rows: []domain.ContributorRow{
		{RepoFullName: "owner/demo", Login: "alice", Contributions: 50, Type: "User"},
	}}
	c := newTestGitHubCollector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(repoPayload))
	}, contribs)

	rec := c.Handle(context.Background(), "owner/demo")
	require.Equal(t, domain.StatusDone, rec.Status)
	require.NotNil(t, rec.Records)

	require.NotNil(t, rec.Records.Meta)
	assert.Equal(t, "owner/demo", rec.Records.Meta.RepoFullName)
	assert.Equal(t, 100, rec.Records.Meta.Stars)
	assert.Equal(t, "MIT", *rec.Records.Meta.License)

	require.Len(t, rec.Records.PullRequests, 1)
	assert.Equal(t, 1, rec.Records.PullRequests[0].Number)
	require.NotNil(t, rec.Records.PullRequests[0].LatencyMergeHours)
	assert.InDelta(t, 24.0, *rec.Records.PullRequests[0].LatencyMergeHours, 1e-9)

	require.Len(t, rec.Records.BugIssues, 1)
	assert.Equal(t, 9, rec.Records.BugIssues[0].Number)

	require.Len(t, rec.Records.Contributors, 1)
	assert.Equal(t, "alice", rec.Records.Contributors[0].Login)
}

func TestGitHubHandle_ArchivedRepoIsSkipped(t *testing.T) {
	c := newTestGitHubCollector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"repository":{"nameWithOwner":"owner/old","isArchived":true,"isFork":false}}}`))
	}, &fakeContributorSource{})

	rec := c.Handle(context.Background(), "owner/old")
	assert.Equal(t, domain.StatusSkipped, rec.Status)
	assert.Equal(t, "archived_or_fork", rec.SkipReason)
	assert.Nil(t, rec.Records)
}

func TestGitHubHandle_ForkIsSkipped(t *testing.T) {
	c := newTestGitHubCollector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"repository":{"nameWithOwner":"owner/copy","isArchived":false,"isFork":true}}}`))
	}, &fakeContributorSource{})

	rec := c.Handle(context.Background(), "owner/copy")
	assert.Equal(t, domain.StatusSkipped, rec.Status)
}

func TestGitHubHandle_MissingRepoIsErrored(t *testing.T) {
	c := newTestGitHubCollector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"repository":null},"errors":[{"type":"NOT_FOUND","message":"Could not resolve to a Repository"}]}`))
	}, &fakeContributorSource{})

	rec := c.Handle(context.Background(), "gone/gone")
	assert.Equal(t, domain.StatusErrored, rec.Status)
	assert.Equal(t, "repository not found", rec.Error)
}

func TestGitHubHandle_ContributorFailureDegradesToEmpty(t *testing.T) {
	contribs := &fakeContributorSource{err: errors.New("listing unavailable")}
	c := newTestGitHubCollector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(repoPayload))
	}, contribs)

	rec := c.Handle(context.Background(), "owner/demo")

	// Contributor listing is best effort: the unit still completes with the
	// GraphQL-derived rows.
	require.Equal(t, domain.StatusDone, rec.Status)
	require.NotNil(t, rec.Records.Meta)
	assert.Empty(t, rec.Records.Contributors)
}

func TestGitHubHandle_MalformedUnitIsErrored(t *testing.T) {
	c := &GitHubCollector{}
	rec := c.Handle(context.Background(), "no-slash-here")
	assert.Equal(t, domain.StatusErrored, rec.Status)
	assert.Equal(t, "malformed repository name", rec.Error)
}

func TestSplitRepoFullName(t *testing.T) {
	owner, name, ok := splitRepoFullName("psf/requests")
	require.True(t, ok)
	assert.Equal(t, "psf", owner)
	assert.Equal(t, "requests", name)

	_, _, ok = splitRepoFullName("requests")
	assert.False(t, ok)

	_, _, ok = splitRepoFullName("/requests")
	assert.False(t, ok)
}
