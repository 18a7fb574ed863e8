package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilgg/oss-transparency/internal/dataset"
	"github.com/nikhilgg/oss-transparency/internal/domain"
)

func openTestStorage(t *testing.T) Storage {
	t.Helper()
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func sampleDataset() *dataset.Dataset {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	score := 0.8

	d := dataset.New()
	d.RepoMeta = []domain.RepoMeta{
		{RepoFullName: "psf/requests", CreatedAt: &created, Stars: 100, Forks: 10},
		{RepoFullName: "gone/gone", Error: "repository not found"},
	}
	d.PullRequests = []domain.PullRequestRow{{RepoFullName: "psf/requests", Number: 1}}
	d.BugIssues = []domain.BugIssueRow{{RepoFullName: "psf/requests", Number: 9, State: "OPEN"}}
	d.Contributors = []domain.ContributorRow{{RepoFullName: "psf/requests", Login: "alice", Contributions: 5, Type: "User"}}
	d.Governance = []domain.GovernanceRow{{RepoFullName: "psf/requests", HasSecurity: true, ArtifactScore: &score}}
	d.Vulns = []domain.VulnRow{{PackageName: "requests", OSVID: "GHSA-1"}}
	d.Packages = []domain.PackageRow{{PackageName: "requests", RepoFullName: "psf/requests"}}
	d.Scorecards = []domain.ScorecardRow{{RepoFullName: "psf/requests", Checks: map[string]float64{"Maintained": 10}}}
	return d
}

func TestSaveDataset_RoundTripCounts(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDataset(ctx, sampleDataset()))

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["repo_meta"])
	assert.Equal(t, 1, counts["pull_requests"])
	assert.Equal(t, 1, counts["bug_issues"])
	assert.Equal(t, 1, counts["contributors"])
	assert.Equal(t, 1, counts["governance"])
	assert.Equal(t, 1, counts["vulns"])
	assert.Equal(t, 1, counts["packages"])
	assert.Equal(t, 1, counts["scorecards"])
}

func TestSaveDataset_ReplacesPreviousLoad(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDataset(ctx, sampleDataset()))

	// A second save is a full reload, not an append.
	smaller := dataset.New()
	smaller.Packages = []domain.PackageRow{{PackageName: "numpy", RepoFullName: "numpy/numpy"}}
	require.NoError(t, store.SaveDataset(ctx, smaller))

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["packages"])
	assert.Equal(t, 0, counts["repo_meta"])
	assert.Equal(t, 0, counts["vulns"])
}

func TestMigrate_IsIdempotent(t *testing.T) {
	store := openTestStorage(t)
	assert.NoError(t, store.Migrate(context.Background()))
}
