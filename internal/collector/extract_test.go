package collector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-github/v55/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRepoMeta_NullableFieldsDegradeToNil(t *testing.T) {
	// A sparse payload: no branch, language, license, or issue count.
	var repo repoResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "demo",
		"nameWithOwner": "owner/demo",
		"stargazerCount": 5,
		"forkCount": 1
	}`), &repo))

	meta := extractRepoMeta(&repo, "owner/demo")
	assert.Equal(t, "owner/demo", meta.RepoFullName)
	assert.Equal(t, 5, meta.Stars)
	assert.Nil(t, meta.RepoID)
	assert.Nil(t, meta.DefaultBranch)
	assert.Nil(t, meta.Language)
	assert.Nil(t, meta.License)
	assert.Nil(t, meta.CreatedAt)
	assert.Equal(t, 0, meta.OpenIssues)
}

func TestExtractRepoMeta_FullPayload(t *testing.T) {
	var repo repoResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"databaseId": 42,
		"name": "demo",
		"nameWithOwner": "owner/demo",
		"defaultBranchRef": {"name": "main"},
		"primaryLanguage": {"name": "Python"},
		"licenseInfo": {"spdxId": "MIT"},
		"openIssues": {"totalCount": 7},
		"stargazerCount": 100,
		"forkCount": 12
	}`), &repo))

	meta := extractRepoMeta(&repo, "owner/demo")
	require.NotNil(t, meta.RepoID)
	assert.Equal(t, int64(42), *meta.RepoID)
	assert.Equal(t, "main", *meta.DefaultBranch)
	assert.Equal(t, "Python", *meta.Language)
	assert.Equal(t, "MIT", *meta.License)
	assert.Equal(t, 7, meta.OpenIssues)
}

func TestExtractPullRequests_LatencyMath(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reviewed := created.Add(6 * time.Hour)
	merged := created.Add(48 * time.Hour)

	payload := map[string]any{
		"pullRequests": map[string]any{
			"nodes": []any{
				map[string]any{
					"number":    1,
					"createdAt": created,
					"mergedAt":  merged,
					"reviews": map[string]any{
						"nodes": []any{map[string]any{"createdAt": reviewed}},
					},
				},
				// never reviewed or merged
				map[string]any{"number": 2, "createdAt": created},
			},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var repo repoResponse
	require.NoError(t, json.Unmarshal(raw, &repo))

	rows := extractPullRequests(&repo, "owner/demo")
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].LatencyFirstReviewHours)
	assert.InDelta(t, 6.0, *rows[0].LatencyFirstReviewHours, 1e-9)
	require.NotNil(t, rows[0].LatencyMergeHours)
	assert.InDelta(t, 48.0, *rows[0].LatencyMergeHours, 1e-9)
	assert.Equal(t, 1, rows[0].ReviewCount)

	assert.Nil(t, rows[1].FirstReviewAt)
	assert.Nil(t, rows[1].LatencyFirstReviewHours)
	assert.Nil(t, rows[1].LatencyMergeHours)
	assert.Equal(t, 0, rows[1].ReviewCount)
}

func TestExtractPullRequests_NilSection(t *testing.T) {
	assert.Nil(t, extractPullRequests(&repoResponse{}, "owner/demo"))
}

func TestExtractBugIssues_MTTR(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	closed := created.Add(36 * time.Hour)

	payload := map[string]any{
		"bugIssues": map[string]any{
			"nodes": []any{
				map[string]any{"number": 10, "createdAt": created, "closedAt": closed, "state": "CLOSED", "comments": map[string]any{"totalCount": 3}},
				map[string]any{"number": 11, "createdAt": created, "state": "OPEN"},
			},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var repo repoResponse
	require.NoError(t, json.Unmarshal(raw, &repo))

	rows := extractBugIssues(&repo, "owner/demo")
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].MTTRDays)
	assert.InDelta(t, 1.5, *rows[0].MTTRDays, 1e-9)
	assert.Equal(t, 3, rows[0].Comments)

	// Open issues have no resolution time.
	assert.Nil(t, rows[1].MTTRDays)
	assert.Equal(t, "OPEN", rows[1].State)
}

func TestContributorRows_LoginFallback(t *testing.T) {
	contribs := []*github.Contributor{
		{Login: github.String("alice"), Contributions: github.Int(120), Type: github.String("User")},
		{Name: github.String("Anonymous Bob"), Contributions: github.Int(3), Type: github.String("Anonymous")},
		{Contributions: github.Int(1)},
	}

	rows := contributorRows("owner/demo", contribs)
	require.Len(t, rows, 3)
	assert.Equal(t, "alice", rows[0].Login)
	assert.Equal(t, 120, rows[0].Contributions)
	assert.Equal(t, "Anonymous Bob", rows[1].Login)
	assert.Equal(t, "unknown", rows[2].Login)
}
