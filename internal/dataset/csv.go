package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// WriteCSV writes every non-empty table as a CSV file under dir. Tables are
// sorted first, so writing the same dataset twice produces byte-identical
// files.
func (d *Dataset) WriteCSV(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	d.Sort()

	if len(d.RepoMeta) > 0 {
		if err := writeTable(dir, "github_repo_meta.csv", repoMetaHeader, repoMetaRows(d.RepoMeta)); err != nil {
			return err
		}
	}
	if len(d.PullRequests) > 0 {
		if err := writeTable(dir, "github_prs.csv", prHeader, prRows(d.PullRequests)); err != nil {
			return err
		}
	}
	if len(d.BugIssues) > 0 {
		if err := writeTable(dir, "github_bug_issues.csv", bugHeader, bugRows(d.BugIssues)); err != nil {
			return err
		}
	}
	if len(d.Contributors) > 0 {
		if err := writeTable(dir, "github_contributors.csv", contribHeader, contribRows(d.Contributors)); err != nil {
			return err
		}
	}
	if len(d.Governance) > 0 {
		if err := writeTable(dir, "governance_artifacts.csv", governanceHeader, governanceRows(d.Governance)); err != nil {
			return err
		}
	}
	if len(d.Vulns) > 0 {
		if err := writeTable(dir, "osv_vulns_raw.csv", vulnHeader, vulnRows(d.Vulns)); err != nil {
			return err
		}
	}
	if len(d.Packages) > 0 {
		if err := writeTable(dir, "pypi_repo_master.csv", packageHeader, packageRows(d.Packages)); err != nil {
			return err
		}
	}
	if len(d.Scorecards) > 0 {
		header, rows := scorecardTable(d.Scorecards)
		if err := writeTable(dir, "scorecard_results.csv", header, rows); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(dir, name string, header []string, rows [][]string) error {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

var repoMetaHeader = []string{
	"repo_full_name", "repo_id", "default_branch", "created_at", "updated_at",
	"pushed_at", "stars", "forks", "open_issues", "language", "archived",
	"fork", "license", "error",
}

func repoMetaRows(metas []domain.RepoMeta) [][]string {
	rows := make([][]string, 0, len(metas))
	for _, m := range metas {
		rows = append(rows, []string{
			m.RepoFullName, fmtInt64Ptr(m.RepoID), fmtStrPtr(m.DefaultBranch),
			fmtTimePtr(m.CreatedAt), fmtTimePtr(m.UpdatedAt), fmtTimePtr(m.PushedAt),
			strconv.Itoa(m.Stars), strconv.Itoa(m.Forks), strconv.Itoa(m.OpenIssues),
			fmtStrPtr(m.Language), strconv.FormatBool(m.Archived),
			strconv.FormatBool(m.Fork), fmtStrPtr(m.License), m.Error,
		})
	}
	return rows
}

var prHeader = []string{
	"repo_full_name", "pr_number", "pr_created_at", "pr_closed_at",
	"pr_merged_at", "first_review_at", "review_count", "author_association",
	"latency_first_review_hours", "latency_merge_hours",
}

func prRows(prs []domain.PullRequestRow) [][]string {
	rows := make([][]string, 0, len(prs))
	for _, p := range prs {
		rows = append(rows, []string{
			p.RepoFullName, strconv.Itoa(p.Number), fmtTimePtr(p.CreatedAt),
			fmtTimePtr(p.ClosedAt), fmtTimePtr(p.MergedAt), fmtTimePtr(p.FirstReviewAt),
			strconv.Itoa(p.ReviewCount), p.AuthorAssociation,
			fmtFloatPtr(p.LatencyFirstReviewHours), fmtFloatPtr(p.LatencyMergeHours),
		})
	}
	return rows
}

var bugHeader = []string{
	"repo_full_name", "issue_number", "created_at", "closed_at", "mttr_days",
	"state", "comments",
}

func bugRows(bugs []domain.BugIssueRow) [][]string {
	rows := make([][]string, 0, len(bugs))
	for _, b := range bugs {
		rows = append(rows, []string{
			b.RepoFullName, strconv.Itoa(b.Number), fmtTimePtr(b.CreatedAt),
			fmtTimePtr(b.ClosedAt), fmtFloatPtr(b.MTTRDays), b.State,
			strconv.Itoa(b.Comments),
		})
	}
	return rows
}

var contribHeader = []string{
	"repo_full_name", "contributor_login", "contributions", "type",
}

func contribRows(contribs []domain.ContributorRow) [][]string {
	rows := make([][]string, 0, len(contribs))
	for _, c := range contribs {
		rows = append(rows, []string{
			c.RepoFullName, c.Login, strconv.Itoa(c.Contributions), c.Type,
		})
	}
	return rows
}

var governanceHeader = []string{
	"repo_full_name", "has_security", "has_coc", "has_contributing",
	"has_codeowners", "has_funding", "governance_artifact_score",
}

func governanceRows(govs []domain.GovernanceRow) [][]string {
	rows := make([][]string, 0, len(govs))
	for _, g := range govs {
		rows = append(rows, []string{
			g.RepoFullName, strconv.FormatBool(g.HasSecurity),
			strconv.FormatBool(g.HasCodeOfConduct), strconv.FormatBool(g.HasContributing),
			strconv.FormatBool(g.HasCodeowners), strconv.FormatBool(g.HasFunding),
			fmtFloatPtr(g.ArtifactScore),
		})
	}
	return rows
}

var vulnHeader = []string{
	"package_name", "osv_id", "published", "modified", "summary", "details",
	"severity_raw", "references", "aliases",
}

func vulnRows(vulns []domain.VulnRow) [][]string {
	rows := make([][]string, 0, len(vulns))
	for _, v := range vulns {
		rows = append(rows, []string{
			v.PackageName, v.OSVID, fmtStrPtr(v.Published), fmtStrPtr(v.Modified),
			v.Summary, v.Details, fmtStrPtr(v.SeverityRaw), v.References, v.Aliases,
		})
	}
	return rows
}

var packageHeader = []string{
	"package_name", "pypi_name", "version_latest", "summary", "github_url",
	"repo_full_name", "license", "requires_python",
}

func packageRows(pkgs []domain.PackageRow) [][]string {
	rows := make([][]string, 0, len(pkgs))
	for _, p := range pkgs {
		rows = append(rows, []string{
			p.PackageName, p.RegistryName, p.LatestVersion, p.Summary,
			p.GitHubURL, p.RepoFullName, p.License, p.RequiresPython,
		})
	}
	return rows
}

// scorecardTable builds header and rows with one sc_<check> column per check
// name seen across all rows
func scorecardTable(cards []domain.ScorecardRow) ([]string, [][]string) {
	checkSet := make(map[string]struct{})
	for _, c := range cards {
		for name := range c.Checks {
			checkSet[name] = struct{}{}
		}
	}
	checkNames := make([]string, 0, len(checkSet))
	for name := range checkSet {
		checkNames = append(checkNames, name)
	}
	sort.Strings(checkNames)

	header := []string{"repo_full_name", "scorecard_score"}
	for _, name := range checkNames {
		header = append(header, "sc_"+name)
	}

	rows := make([][]string, 0, len(cards))
	for _, c := range cards {
		row := []string{c.RepoFullName, fmtFloatPtr(c.Score)}
		for _, name := range checkNames {
			if score, ok := c.Checks[name]; ok {
				row = append(row, strconv.FormatFloat(score, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func fmtInt64Ptr(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func fmtStrPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
