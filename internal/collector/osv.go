package collector

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nikhilgg/oss-transparency/internal/domain"
	"github.com/nikhilgg/oss-transparency/internal/ghclient"
)

const defaultOSVURL = "https://api.osv.dev/v1/query"

type osvResponse struct {
	Vulns []osvVuln `json:"vulns"`
}

type osvVuln struct {
	ID        string   `json:"id"`
	Published *string  `json:"published"`
	Modified  *string  `json:"modified"`
	Summary   string   `json:"summary"`
	Details   string   `json:"details"`
	Aliases   []string `json:"aliases"`
	Severity  []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
	References []struct {
		URL string `json:"url"`
	} `json:"references"`
}

// OSVCollector queries the OSV vulnerability database for one registry
// package per unit and flattens the advisories into rows. A package without
// known vulnerabilities is still a completed unit with zero rows.
type OSVCollector struct {
	client    *ghclient.Client
	queryURL  string
	ecosystem string
}

// NewOSVCollector creates the OSV collection handler
func NewOSVCollector(client *ghclient.Client) *OSVCollector {
	return &OSVCollector{
		client:    client,
		queryURL:  defaultOSVURL,
		ecosystem: "PyPI",
	}
}

// Stage names the collection stage
func (c *OSVCollector) Stage() string { return "osv" }

// Handle queries vulnerabilities for one package
func (c *OSVCollector) Handle(ctx context.Context, packageName string) *domain.CheckpointRecord {
	body := map[string]any{
		"package": map[string]any{"name": packageName, "ecosystem": c.ecosystem},
	}

	raw, err := c.client.PostJSON(ctx, c.queryURL, body)
	if err != nil {
		return domain.NewErroredRecord(packageName, err.Error())
	}

	var resp osvResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.NewErroredRecord(packageName, "malformed OSV payload: "+err.Error())
	}

	rows := make([]domain.VulnRow, 0, len(resp.Vulns))
	for _, v := range resp.Vulns {
		row := domain.VulnRow{
			PackageName: packageName,
			OSVID:       v.ID,
			Published:   v.Published,
			Modified:    v.Modified,
			Summary:     v.Summary,
			Details:     truncate(v.Details, 5000),
			Aliases:     strings.Join(v.Aliases, ";"),
		}
		// Some OSV entries include a CVSS vector; keep the raw value.
		if len(v.Severity) > 0 {
			sev := v.Severity[0].Score
			if sev == "" {
				sev = v.Severity[0].Type
			}
			row.SeverityRaw = &sev
		}
		refs := make([]string, 0, len(v.References))
		for _, r := range v.References {
			refs = append(refs, r.URL)
		}
		row.References = strings.Join(refs, ";")
		rows = append(rows, row)
	}

	return domain.NewDoneRecord(packageName, &domain.ExtractedRecords{Vulns: rows})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
