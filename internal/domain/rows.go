package domain

import "time"

// RepoMeta is one repository metadata row. Pointer fields are null when the
// provider response omitted the nested value.
type RepoMeta struct {
	RepoFullName  string     `json:"repo_full_name"`
	RepoID        *int64     `json:"repo_id"`
	DefaultBranch *string    `json:"default_branch"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
	PushedAt      *time.Time `json:"pushed_at"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	OpenIssues    int        `json:"open_issues"`
	Language      *string    `json:"language"`
	Archived      bool       `json:"archived"`
	Fork          bool       `json:"fork"`
	License       *string    `json:"license"`
	Error         string     `json:"error,omitempty"`
}

// PullRequestRow is one pull request row with review/merge latency fields.
// Latencies are null when either input timestamp is absent.
type PullRequestRow struct {
	RepoFullName            string     `json:"repo_full_name"`
	Number                  int        `json:"pr_number"`
	CreatedAt               *time.Time `json:"pr_created_at"`
	ClosedAt                *time.Time `json:"pr_closed_at"`
	MergedAt                *time.Time `json:"pr_merged_at"`
	FirstReviewAt           *time.Time `json:"first_review_at"`
	ReviewCount             int        `json:"review_count"`
	AuthorAssociation       string     `json:"author_association"`
	LatencyFirstReviewHours *float64   `json:"latency_first_review_hours"`
	LatencyMergeHours       *float64   `json:"latency_merge_hours"`
}

// BugIssueRow is one bug-labeled issue row. MTTRDays is null for open issues.
type BugIssueRow struct {
	RepoFullName string     `json:"repo_full_name"`
	Number       int        `json:"issue_number"`
	CreatedAt    *time.Time `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	MTTRDays     *float64   `json:"mttr_days"`
	State        string     `json:"state"`
	Comments     int        `json:"comments"`
}

// ContributorRow is one contributor row (anonymous contributors included)
type ContributorRow struct {
	RepoFullName  string `json:"repo_full_name"`
	Login         string `json:"contributor_login"`
	Contributions int    `json:"contributions"`
	Type          string `json:"type"`
}

// GovernanceRow reports which governance artifacts a repository carries.
// ArtifactScore is the fraction of artifact groups present, null when the
// repository could not be inspected.
type GovernanceRow struct {
	RepoFullName     string   `json:"repo_full_name"`
	HasSecurity      bool     `json:"has_security"`
	HasCodeOfConduct bool     `json:"has_coc"`
	HasContributing  bool     `json:"has_contributing"`
	HasCodeowners    bool     `json:"has_codeowners"`
	HasFunding       bool     `json:"has_funding"`
	ArtifactScore    *float64 `json:"governance_artifact_score"`
}

// VulnRow is one flattened OSV vulnerability row
type VulnRow struct {
	PackageName string  `json:"package_name"`
	OSVID       string  `json:"osv_id"`
	Published   *string `json:"published"`
	Modified    *string `json:"modified"`
	Summary     string  `json:"summary"`
	Details     string  `json:"details"`
	SeverityRaw *string `json:"severity_raw"`
	References  string  `json:"references"`
	Aliases     string  `json:"aliases"`
}

// PackageRow maps one registry package to its GitHub repository
type PackageRow struct {
	PackageName    string `json:"package_name"`
	RegistryName   string `json:"pypi_name"`
	LatestVersion  string `json:"version_latest"`
	Summary        string `json:"summary"`
	GitHubURL      string `json:"github_url"`
	RepoFullName   string `json:"repo_full_name"`
	License        string `json:"license"`
	RequiresPython string `json:"requires_python"`
}

// ScorecardRow is one OpenSSF Scorecard result row
type ScorecardRow struct {
	RepoFullName string             `json:"repo_full_name"`
	Score        *float64           `json:"scorecard_score"`
	Checks       map[string]float64 `json:"checks,omitempty"`
}
