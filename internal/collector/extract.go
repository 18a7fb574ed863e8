package collector

import (
	"time"

	"github.com/google/go-github/v55/github"

	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// Typed view of the repository GraphQL response. Every nested object is a
// pointer so a missing field degrades to a null column instead of failing
// the unit.
type repoResponse struct {
	DatabaseID       *int64     `json:"databaseId"`
	Name             string     `json:"name"`
	NameWithOwner    string     `json:"nameWithOwner"`
	DefaultBranchRef *nameNode  `json:"defaultBranchRef"`
	CreatedAt        *time.Time `json:"createdAt"`
	UpdatedAt        *time.Time `json:"updatedAt"`
	PushedAt         *time.Time `json:"pushedAt"`
	StargazerCount   int        `json:"stargazerCount"`
	ForkCount        int        `json:"forkCount"`
	PrimaryLanguage  *nameNode  `json:"primaryLanguage"`
	IsArchived       bool       `json:"isArchived"`
	IsFork           bool       `json:"isFork"`
	LicenseInfo      *struct {
		SpdxID *string `json:"spdxId"`
	} `json:"licenseInfo"`
	OpenIssues *countNode `json:"openIssues"`

	PullRequests *struct {
		Nodes []prNode `json:"nodes"`
	} `json:"pullRequests"`

	BugIssues *struct {
		Nodes []issueNode `json:"nodes"`
	} `json:"bugIssues"`
}

type nameNode struct {
	Name string `json:"name"`
}

type countNode struct {
	TotalCount int `json:"totalCount"`
}

type prNode struct {
	Number            int        `json:"number"`
	CreatedAt         *time.Time `json:"createdAt"`
	ClosedAt          *time.Time `json:"closedAt"`
	MergedAt          *time.Time `json:"mergedAt"`
	AuthorAssociation string     `json:"authorAssociation"`
	Reviews           *struct {
		Nodes []struct {
			CreatedAt *time.Time `json:"createdAt"`
		} `json:"nodes"`
	} `json:"reviews"`
}

type issueNode struct {
	Number    int        `json:"number"`
	CreatedAt *time.Time `json:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	State     string     `json:"state"`
	Comments  *countNode `json:"comments"`
}

// extractRepoMeta maps the GraphQL repository payload to one metadata row
func extractRepoMeta(r *repoResponse, repoFullName string) *domain.RepoMeta {
	meta := &domain.RepoMeta{
		RepoFullName: repoFullName,
		RepoID:       r.DatabaseID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		PushedAt:     r.PushedAt,
		Stars:        r.StargazerCount,
		Forks:        r.ForkCount,
		Archived:     r.IsArchived,
		Fork:         r.IsFork,
	}
	if r.DefaultBranchRef != nil {
		meta.DefaultBranch = &r.DefaultBranchRef.Name
	}
	if r.PrimaryLanguage != nil {
		meta.Language = &r.PrimaryLanguage.Name
	}
	if r.LicenseInfo != nil {
		meta.License = r.LicenseInfo.SpdxID
	}
	if r.OpenIssues != nil {
		meta.OpenIssues = r.OpenIssues.TotalCount
	}
	return meta
}

// extractPullRequests maps PR nodes to flat rows with review/merge latency.
// The provider already bounds the window (last 100 PRs), so no date filter
// is applied here.
func extractPullRequests(r *repoResponse, repoFullName string) []domain.PullRequestRow {
	if r.PullRequests == nil {
		return nil
	}
	rows := make([]domain.PullRequestRow, 0, len(r.PullRequests.Nodes))
	for _, pr := range r.PullRequests.Nodes {
		var firstReviewAt *time.Time
		reviewCount := 0
		if pr.Reviews != nil {
			reviewCount = len(pr.Reviews.Nodes)
			if reviewCount > 0 {
				firstReviewAt = pr.Reviews.Nodes[0].CreatedAt
			}
		}
		rows = append(rows, domain.PullRequestRow{
			RepoFullName:            repoFullName,
			Number:                  pr.Number,
			CreatedAt:               pr.CreatedAt,
			ClosedAt:                pr.ClosedAt,
			MergedAt:                pr.MergedAt,
			FirstReviewAt:           firstReviewAt,
			ReviewCount:             reviewCount,
			AuthorAssociation:       pr.AuthorAssociation,
			LatencyFirstReviewHours: hoursBetween(pr.CreatedAt, firstReviewAt),
			LatencyMergeHours:       hoursBetween(pr.CreatedAt, pr.MergedAt),
		})
	}
	return rows
}

// extractBugIssues maps bug-labeled issue nodes to flat rows with MTTR
func extractBugIssues(r *repoResponse, repoFullName string) []domain.BugIssueRow {
	if r.BugIssues == nil {
		return nil
	}
	rows := make([]domain.BugIssueRow, 0, len(r.BugIssues.Nodes))
	for _, issue := range r.BugIssues.Nodes {
		comments := 0
		if issue.Comments != nil {
			comments = issue.Comments.TotalCount
		}
		rows = append(rows, domain.BugIssueRow{
			RepoFullName: repoFullName,
			Number:       issue.Number,
			CreatedAt:    issue.CreatedAt,
			ClosedAt:     issue.ClosedAt,
			MTTRDays:     daysBetween(issue.CreatedAt, issue.ClosedAt),
			State:        issue.State,
			Comments:     comments,
		})
	}
	return rows
}

// contributorRows maps the REST contributor listing to flat rows
func contributorRows(repoFullName string, contribs []*github.Contributor) []domain.ContributorRow {
	rows := make([]domain.ContributorRow, 0, len(contribs))
	for _, c := range contribs {
		login := c.GetLogin()
		if login == "" {
			login = c.GetName()
		}
		if login == "" {
			login = "unknown"
		}
		rows = append(rows, domain.ContributorRow{
			RepoFullName:  repoFullName,
			Login:         login,
			Contributions: c.GetContributions(),
			Type:          c.GetType(),
		})
	}
	return rows
}

// hoursBetween returns the duration from a to b in hours, null when either
// timestamp is absent
func hoursBetween(a, b *time.Time) *float64 {
	if a == nil || b == nil {
		return nil
	}
	h := b.Sub(*a).Hours()
	return &h
}

// daysBetween returns the duration from a to b in days, null when either
// timestamp is absent
func daysBetween(a, b *time.Time) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := b.Sub(*a).Hours() / 24
	return &d
}
