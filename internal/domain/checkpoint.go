package domain

import "time"

// Status is the terminal state of a work unit within a run
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusErrored Status = "errored"
)

// CheckpointRecord is one self-contained entry in the append-only checkpoint
// log. Exactly one record is written per attempted work unit per run; a unit
// with any record present is not reattempted on resume.
type CheckpointRecord struct {
	UnitID     string            `json:"unit_id"`
	Status     Status            `json:"status"`
	Records    *ExtractedRecords `json:"records,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
	Error      string            `json:"error,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// ExtractedRecords is the bundle of flat rows extracted from one work unit's
// raw response. Which fields are set depends on the collection stage that
// produced the record.
type ExtractedRecords struct {
	Meta         *RepoMeta        `json:"meta,omitempty"`
	PullRequests []PullRequestRow `json:"prs,omitempty"`
	BugIssues    []BugIssueRow    `json:"bugs,omitempty"`
	Contributors []ContributorRow `json:"contribs,omitempty"`
	Governance   *GovernanceRow   `json:"governance,omitempty"`
	Vulns        []VulnRow        `json:"vulns,omitempty"`
	Package      *PackageRow      `json:"package,omitempty"`
}

// NewDoneRecord creates a checkpoint record for a successfully collected unit
func NewDoneRecord(unitID string, records *ExtractedRecords) *CheckpointRecord {
	return &CheckpointRecord{
		UnitID:     unitID,
		Status:     StatusDone,
		Records:    records,
		RecordedAt: time.Now().UTC(),
	}
}

// NewSkippedRecord creates a checkpoint record for an intentionally excluded unit
func NewSkippedRecord(unitID, reason string) *CheckpointRecord {
	return &CheckpointRecord{
		UnitID:     unitID,
		Status:     StatusSkipped,
		SkipReason: reason,
		RecordedAt: time.Now().UTC(),
	}
}

// NewErroredRecord creates a checkpoint record for a failed unit
func NewErroredRecord(unitID, errDetail string) *CheckpointRecord {
	return &CheckpointRecord{
		UnitID:     unitID,
		Status:     StatusErrored,
		Error:      errDetail,
		RecordedAt: time.Now().UTC(),
	}
}
