package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nikhilgg/oss-transparency/internal/dataset"
	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// Handler serves the rebuilt aggregate dataset read-only. The dataset is
// loaded once at startup from the checkpoint logs; downstream consumers read
// this aggregate, never the logs.
type Handler struct {
	data *dataset.Dataset
}

// NewHandler creates a handler over a rebuilt dataset
func NewHandler(data *dataset.Dataset) *Handler {
	data.Sort()
	return &Handler{data: data}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Summary is the per-table row count report
type Summary struct {
	RepoMeta     int `json:"repo_meta"`
	PullRequests int `json:"pull_requests"`
	BugIssues    int `json:"bug_issues"`
	Contributors int `json:"contributors"`
	Governance   int `json:"governance"`
	Vulns        int `json:"vulns"`
	Packages     int `json:"packages"`
	Scorecards   int `json:"scorecards"`
}

// GetSummary handles GET /api/v1/summary
func (h *Handler) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": Summary{
		RepoMeta:     len(h.data.RepoMeta),
		PullRequests: len(h.data.PullRequests),
		BugIssues:    len(h.data.BugIssues),
		Contributors: len(h.data.Contributors),
		Governance:   len(h.data.Governance),
		Vulns:        len(h.data.Vulns),
		Packages:     len(h.data.Packages),
		Scorecards:   len(h.data.Scorecards),
	}})
}

// GetRepos handles GET /api/v1/repos
func (h *Handler) GetRepos(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.data.RepoMeta})
}

// RepoDetail bundles every row category for one repository
type RepoDetail struct {
	Meta         *domain.RepoMeta        `json:"meta"`
	PullRequests []domain.PullRequestRow `json:"prs"`
	BugIssues    []domain.BugIssueRow    `json:"bugs"`
	Contributors []domain.ContributorRow `json:"contribs"`
	Governance   *domain.GovernanceRow   `json:"governance,omitempty"`
}

// GetRepo handles GET /api/v1/repos/:owner/:name
func (h *Handler) GetRepo(c *gin.Context) {
	full := c.Param("owner") + "/" + c.Param("name")

	detail := RepoDetail{}
	for i := range h.data.RepoMeta {
		if h.data.RepoMeta[i].RepoFullName == full {
			detail.Meta = &h.data.RepoMeta[i]
			break
		}
	}
	if detail.Meta == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		return
	}

	for _, p := range h.data.PullRequests {
		if p.RepoFullName == full {
			detail.PullRequests = append(detail.PullRequests, p)
		}
	}
	for _, b := range h.data.BugIssues {
		if b.RepoFullName == full {
			detail.BugIssues = append(detail.BugIssues, b)
		}
	}
	for _, ct := range h.data.Contributors {
		if ct.RepoFullName == full {
			detail.Contributors = append(detail.Contributors, ct)
		}
	}
	for i := range h.data.Governance {
		if h.data.Governance[i].RepoFullName == full {
			detail.Governance = &h.data.Governance[i]
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

// GetVulns handles GET /api/v1/vulns with an optional package filter
func (h *Handler) GetVulns(c *gin.Context) {
	pkg := c.Query("package")
	if pkg == "" {
		c.JSON(http.StatusOK, gin.H{"data": h.data.Vulns})
		return
	}

	filtered := []domain.VulnRow{}
	for _, v := range h.data.Vulns {
		if v.PackageName == pkg {
			filtered = append(filtered, v)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": filtered})
}

// GetPackages handles GET /api/v1/packages
func (h *Handler) GetPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.data.Packages})
}
