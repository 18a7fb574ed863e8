// Package dataset rebuilds the aggregate output tables from checkpoint logs.
// The aggregate is always reconstructed from the complete log, never from
// in-memory state of the current run, so a resumed collection produces a
// dataset identical to one that ran to completion in a single pass.
package dataset

import (
	"sort"

	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// Dataset is the full rebuilt set of flat records. Downstream dataset
// assembly and statistics read this aggregate, never the checkpoint logs.
type Dataset struct {
	RepoMeta     []domain.RepoMeta
	PullRequests []domain.PullRequestRow
	BugIssues    []domain.BugIssueRow
	Contributors []domain.ContributorRow
	Governance   []domain.GovernanceRow
	Vulns        []domain.VulnRow
	Packages     []domain.PackageRow
	Scorecards   []domain.ScorecardRow
}

// New creates an empty dataset
func New() *Dataset {
	return &Dataset{}
}

// AddGitHubRecords folds one GitHub checkpoint log into the dataset. Errored
// units become error rows in the metadata table so they stay inspectable;
// skipped units contribute nothing.
func (d *Dataset) AddGitHubRecords(records []*domain.CheckpointRecord) {
	for _, rec := range records {
		switch rec.Status {
		case domain.StatusErrored:
			d.RepoMeta = append(d.RepoMeta, domain.RepoMeta{
				RepoFullName: rec.UnitID,
				Error:        rec.Error,
			})
		case domain.StatusDone:
			if rec.Records == nil {
				continue
			}
			if rec.Records.Meta != nil {
				d.RepoMeta = append(d.RepoMeta, *rec.Records.Meta)
			}
			d.PullRequests = append(d.PullRequests, rec.Records.PullRequests...)
			d.BugIssues = append(d.BugIssues, rec.Records.BugIssues...)
			d.Contributors = append(d.Contributors, rec.Records.Contributors...)
		}
	}
}

// AddGovernanceRecords folds one governance checkpoint log into the dataset
func (d *Dataset) AddGovernanceRecords(records []*domain.CheckpointRecord) {
	for _, rec := range records {
		if rec.Status != domain.StatusDone || rec.Records == nil || rec.Records.Governance == nil {
			continue
		}
		d.Governance = append(d.Governance, *rec.Records.Governance)
	}
}

// AddVulnRecords folds one OSV checkpoint log into the dataset
func (d *Dataset) AddVulnRecords(records []*domain.CheckpointRecord) {
	for _, rec := range records {
		if rec.Status != domain.StatusDone || rec.Records == nil {
			continue
		}
		d.Vulns = append(d.Vulns, rec.Records.Vulns...)
	}
}

// AddPackageRecords folds one registry checkpoint log into the dataset
func (d *Dataset) AddPackageRecords(records []*domain.CheckpointRecord) {
	for _, rec := range records {
		if rec.Status != domain.StatusDone || rec.Records == nil || rec.Records.Package == nil {
			continue
		}
		d.Packages = append(d.Packages, *rec.Records.Package)
	}
}

// SetScorecards attaches locally parsed scorecard rows
func (d *Dataset) SetScorecards(rows []domain.ScorecardRow) {
	d.Scorecards = rows
}

// Sort orders every table deterministically (unit, then natural key) so that
// rebuilding an unchanged log twice yields row-for-row identical output.
func (d *Dataset) Sort() {
	sort.SliceStable(d.RepoMeta, func(i, j int) bool {
		return d.RepoMeta[i].RepoFullName < d.RepoMeta[j].RepoFullName
	})
	sort.SliceStable(d.PullRequests, func(i, j int) bool {
		a, b := d.PullRequests[i], d.PullRequests[j]
		if a.RepoFullName != b.RepoFullName {
			return a.RepoFullName < b.RepoFullName
		}
		return a.Number < b.Number
	})
	sort.SliceStable(d.BugIssues, func(i, j int) bool {
		a, b := d.BugIssues[i], d.BugIssues[j]
		if a.RepoFullName != b.RepoFullName {
			return a.RepoFullName < b.RepoFullName
		}
		return a.Number < b.Number
	})
	sort.SliceStable(d.Contributors, func(i, j int) bool {
		a, b := d.Contributors[i], d.Contributors[j]
		if a.RepoFullName != b.RepoFullName {
			return a.RepoFullName < b.RepoFullName
		}
		return a.Login < b.Login
	})
	sort.SliceStable(d.Governance, func(i, j int) bool {
		return d.Governance[i].RepoFullName < d.Governance[j].RepoFullName
	})
	sort.SliceStable(d.Vulns, func(i, j int) bool {
		a, b := d.Vulns[i], d.Vulns[j]
		if a.PackageName != b.PackageName {
			return a.PackageName < b.PackageName
		}
		return a.OSVID < b.OSVID
	})
	sort.SliceStable(d.Packages, func(i, j int) bool {
		return d.Packages[i].PackageName < d.Packages[j].PackageName
	})
	sort.SliceStable(d.Scorecards, func(i, j int) bool {
		return d.Scorecards[i].RepoFullName < d.Scorecards[j].RepoFullName
	})
}

// RepoUnitsFromPackages derives the GitHub work-unit list from completed
// registry records: the unique repository names, in first-seen order.
func RepoUnitsFromPackages(records []*domain.CheckpointRecord) []string {
	var units []string
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.Status != domain.StatusDone || rec.Records == nil || rec.Records.Package == nil {
			continue
		}
		repo := rec.Records.Package.RepoFullName
		if repo == "" {
			continue
		}
		if _, ok := seen[repo]; ok {
			continue
		}
		seen[repo] = struct{}{}
		units = append(units, repo)
	}
	return units
}

// RepoUnitsFromMeta derives the governance work-unit list from completed
// GitHub records
func RepoUnitsFromMeta(records []*domain.CheckpointRecord) []string {
	var units []string
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.Status != domain.StatusDone || rec.Records == nil || rec.Records.Meta == nil {
			continue
		}
		repo := rec.Records.Meta.RepoFullName
		if _, ok := seen[repo]; ok {
			continue
		}
		seen[repo] = struct{}{}
		units = append(units, repo)
	}
	return units
}

// PackageUnits derives the OSV work-unit list: every package the registry
// stage completed, in first-seen order. Skipped and errored packages never
// made it into the master table, so they are not queried for vulnerabilities.
func PackageUnits(records []*domain.CheckpointRecord) []string {
	var units []string
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.Status != domain.StatusDone {
			continue
		}
		if _, ok := seen[rec.UnitID]; ok {
			continue
		}
		seen[rec.UnitID] = struct{}{}
		units = append(units, rec.UnitID)
	}
	return units
}
