package collector

import (
	"context"
	"encoding/json"

	apperrors "github.com/nikhilgg/oss-transparency/internal/errors"
	"github.com/nikhilgg/oss-transparency/internal/domain"
	"github.com/nikhilgg/oss-transparency/internal/ghclient"
)

// governanceQuery probes all governance file paths in a single call per repo
const governanceQuery = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    security_root: object(expression: "HEAD:SECURITY.md") { __typename }
    security_gh: object(expression: "HEAD:.github/SECURITY.md") { __typename }
    coc_root: object(expression: "HEAD:CODE_OF_CONDUCT.md") { __typename }
    coc_gh: object(expression: "HEAD:.github/CODE_OF_CONDUCT.md") { __typename }
    contributing_root: object(expression: "HEAD:CONTRIBUTING.md") { __typename }
    contributing_gh: object(expression: "HEAD:.github/CONTRIBUTING.md") { __typename }
    codeowners_gh: object(expression: "HEAD:.github/CODEOWNERS") { __typename }
    codeowners_root: object(expression: "HEAD:CODEOWNERS") { __typename }
    funding: object(expression: "HEAD:.github/FUNDING.yml") { __typename }
  }
}
`

type objectNode struct {
	TypeName string `json:"__typename"`
}

type governanceResponse struct {
	SecurityRoot     *objectNode `json:"security_root"`
	SecurityGH       *objectNode `json:"security_gh"`
	CocRoot          *objectNode `json:"coc_root"`
	CocGH            *objectNode `json:"coc_gh"`
	ContributingRoot *objectNode `json:"contributing_root"`
	ContributingGH   *objectNode `json:"contributing_gh"`
	CodeownersGH     *objectNode `json:"codeowners_gh"`
	CodeownersRoot   *objectNode `json:"codeowners_root"`
	Funding          *objectNode `json:"funding"`
}

// GovernanceChecker detects governance artifacts (security policy, code of
// conduct, contributing guide, CODEOWNERS, funding) for one repository per
// unit. The artifact score is the fraction of artifact groups present; a
// repository that cannot be inspected gets a null score rather than an error.
type GovernanceChecker struct {
	client *ghclient.Client
}

// NewGovernanceChecker creates the governance collection handler
func NewGovernanceChecker(client *ghclient.Client) *GovernanceChecker {
	return &GovernanceChecker{client: client}
}

// Stage names the collection stage
func (c *GovernanceChecker) Stage() string { return "governance" }

// Handle checks one repository's governance artifacts
func (c *GovernanceChecker) Handle(ctx context.Context, repoFullName string) *domain.CheckpointRecord {
	owner, name, ok := splitRepoFullName(repoFullName)
	if !ok {
		return domain.NewErroredRecord(repoFullName, "malformed repository name")
	}

	data, err := c.client.GraphQL(ctx, governanceQuery, map[string]any{"owner": owner, "name": name})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nullScoreRecord(repoFullName)
		}
		return domain.NewErroredRecord(repoFullName, err.Error())
	}

	var envelope struct {
		Repository *governanceResponse `json:"repository"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return domain.NewErroredRecord(repoFullName, "malformed governance payload: "+err.Error())
	}
	if envelope.Repository == nil {
		return nullScoreRecord(repoFullName)
	}
	r := envelope.Repository

	// Each group is one governance artifact; any path in the group counts.
	row := &domain.GovernanceRow{
		RepoFullName:     repoFullName,
		HasSecurity:      anyPresent(r.SecurityRoot, r.SecurityGH),
		HasCodeOfConduct: anyPresent(r.CocRoot, r.CocGH),
		HasContributing:  anyPresent(r.ContributingRoot, r.ContributingGH),
		HasCodeowners:    anyPresent(r.CodeownersGH, r.CodeownersRoot),
		HasFunding:       anyPresent(r.Funding),
	}

	present := 0
	for _, has := range []bool{row.HasSecurity, row.HasCodeOfConduct, row.HasContributing, row.HasCodeowners, row.HasFunding} {
		if has {
			present++
		}
	}
	score := float64(present) / 5
	row.ArtifactScore = &score

	return domain.NewDoneRecord(repoFullName, &domain.ExtractedRecords{Governance: row})
}

func nullScoreRecord(repoFullName string) *domain.CheckpointRecord {
	return domain.NewDoneRecord(repoFullName, &domain.ExtractedRecords{
		Governance: &domain.GovernanceRow{RepoFullName: repoFullName},
	})
}

func anyPresent(nodes ...*objectNode) bool {
	for _, n := range nodes {
		if n != nil {
			return true
		}
	}
	return false
}
