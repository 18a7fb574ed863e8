package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/nikhilgg/oss-transparency/internal/errors"
	"github.com/nikhilgg/oss-transparency/internal/domain"
	"github.com/nikhilgg/oss-transparency/internal/ghclient"
)

const defaultPyPIURL = "https://pypi.org/pypi"

var githubURLRe = regexp.MustCompile(`https?://github\.com/[^/\s]+/[^/\s#]+`)

type pypiInfo struct {
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Summary        string            `json:"summary"`
	License        string            `json:"license"`
	RequiresPython string            `json:"requires_python"`
	HomePage       string            `json:"home_page"`
	ProjectURL     string            `json:"project_url"`
	DownloadURL    string            `json:"download_url"`
	ProjectURLs    map[string]string `json:"project_urls"`
}

// PyPICollector resolves one registry package per unit to its GitHub
// repository, producing the package-to-repository master table that seeds
// the downstream collection stages. Packages without a discoverable GitHub
// repository are recorded as skipped.
type PyPICollector struct {
	client  *ghclient.Client
	baseURL string
}

// NewPyPICollector creates the registry metadata handler
func NewPyPICollector(client *ghclient.Client) *PyPICollector {
	return &PyPICollector{client: client, baseURL: defaultPyPIURL}
}

// Stage names the collection stage
func (c *PyPICollector) Stage() string { return "pypi" }

// Handle fetches registry metadata for one package
func (c *PyPICollector) Handle(ctx context.Context, packageName string) *domain.CheckpointRecord {
	raw, err := c.client.Get(ctx, fmt.Sprintf("%s/%s/json", c.baseURL, packageName), nil)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domain.NewErroredRecord(packageName, "package not found")
		}
		return domain.NewErroredRecord(packageName, err.Error())
	}

	var envelope struct {
		Info *pypiInfo `json:"info"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Info == nil {
		return domain.NewErroredRecord(packageName, "malformed registry payload")
	}
	info := envelope.Info

	githubURL := extractGitHubURL(info)
	if githubURL == "" {
		return domain.NewSkippedRecord(packageName, "no_github_url")
	}

	row := &domain.PackageRow{
		PackageName:    packageName,
		RegistryName:   info.Name,
		LatestVersion:  info.Version,
		Summary:        info.Summary,
		GitHubURL:      githubURL,
		RepoFullName:   RepoFullNameFromURL(githubURL),
		License:        info.License,
		RequiresPython: info.RequiresPython,
	}
	return domain.NewDoneRecord(packageName, &domain.ExtractedRecords{Package: row})
}

// extractGitHubURL tries the several places the registry stores URLs and
// returns the first repository-shaped GitHub URL found
func extractGitHubURL(info *pypiInfo) string {
	var candidates []string
	for _, u := range info.ProjectURLs {
		candidates = append(candidates, u)
	}
	candidates = append(candidates, info.HomePage, info.ProjectURL, info.DownloadURL)

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		m := githubURLRe.FindString(candidate)
		if m == "" {
			continue
		}
		url := strings.TrimRight(m, "/")
		// Skip non-repo URLs like github.com/sponsors/username
		parts := strings.Split(url, "/")
		if len(parts) >= 5 {
			switch parts[3] {
			case "sponsors", "orgs", "settings":
				continue
			}
		}
		return url
	}
	return ""
}

// RepoFullNameFromURL derives "owner/name" from a GitHub repository URL
func RepoFullNameFromURL(githubURL string) string {
	parts := strings.Split(strings.TrimRight(githubURL, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}
