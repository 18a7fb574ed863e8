package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nikhilgg/oss-transparency/internal/api"
	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// Client is the API client for the oss-transparency dataset server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health checks whether the dataset server is reachable
func (c *Client) Health() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	return nil
}

// GetSummary retrieves per-table row counts
func (c *Client) GetSummary() (*api.Summary, error) {
	var response struct {
		Data *api.Summary `json:"data"`
	}
	if err := c.get("/api/v1/summary", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRepos retrieves all repository metadata rows
func (c *Client) GetRepos() ([]domain.RepoMeta, error) {
	var response struct {
		Data []domain.RepoMeta `json:"data"`
	}
	if err := c.get("/api/v1/repos", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetVulns retrieves vulnerability rows, optionally filtered by package
func (c *Client) GetVulns(pkg string) ([]domain.VulnRow, error) {
	params := url.Values{}
	if pkg != "" {
		params.Set("package", pkg)
	}

	var response struct {
		Data []domain.VulnRow `json:"data"`
	}
	if err := c.get("/api/v1/vulns", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// get performs a GET request and decodes the JSON response
func (c *Client) get(path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	resp, err := c.httpClient.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %s: %s", resp.Status, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
