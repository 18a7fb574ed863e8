package collector

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nikhilgg/oss-transparency/internal/domain"
)

type scorecardFile struct {
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Score  *float64 `json:"score"`
	Checks []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"checks"`
}

// LoadScorecardDir parses locally produced OpenSSF Scorecard JSON files into
// flat rows. Files that fail to parse are skipped; this stage reads operator
// supplied artifacts, not a remote API.
func LoadScorecardDir(dir string) ([]domain.ScorecardRow, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	var rows []domain.ScorecardRow
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var sc scorecardFile
		if err := json.Unmarshal(data, &sc); err != nil {
			continue
		}

		repo := strings.TrimPrefix(sc.Repo.Name, "https://github.com/")
		repo = strings.TrimPrefix(repo, "github.com/")

		row := domain.ScorecardRow{
			RepoFullName: repo,
			Score:        sc.Score,
		}
		if len(sc.Checks) > 0 {
			row.Checks = make(map[string]float64, len(sc.Checks))
			for _, c := range sc.Checks {
				row.Checks[c.Name] = c.Score
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
