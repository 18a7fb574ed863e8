package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nikhilgg/oss-transparency/internal/api"
	"github.com/nikhilgg/oss-transparency/internal/checkpoint"
	"github.com/nikhilgg/oss-transparency/internal/collector"
	"github.com/nikhilgg/oss-transparency/internal/config"
	"github.com/nikhilgg/oss-transparency/internal/dataset"
	"github.com/nikhilgg/oss-transparency/internal/domain"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	data, err := rebuildDataset(cfg)
	if err != nil {
		logger.Error("failed to rebuild dataset", "error", err)
		os.Exit(1)
	}
	logger.Info("dataset rebuilt",
		"repos", len(data.RepoMeta),
		"packages", len(data.Packages),
		"vulns", len(data.Vulns))

	handler := api.NewHandler(data)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting dataset server", "addr", addr)
	if err := router.Run(addr); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// rebuildDataset reloads every stage's checkpoint log into the in-memory
// aggregate. Logs that do not exist yet contribute nothing.
func rebuildDataset(cfg *config.Config) (*dataset.Dataset, error) {
	data := dataset.New()

	stages := []struct {
		name string
		add  func([]*domain.CheckpointRecord)
	}{
		{"github", data.AddGitHubRecords},
		{"governance", data.AddGovernanceRecords},
		{"osv", data.AddVulnRecords},
		{"pypi", data.AddPackageRecords},
	}
	for _, stage := range stages {
		records, err := loadStageRecords(cfg, stage.name)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.name, err)
		}
		stage.add(records)
	}

	if rows, err := collector.LoadScorecardDir(cfg.ScorecardDir); err == nil && len(rows) > 0 {
		data.SetScorecards(rows)
	}
	return data, nil
}

func loadStageRecords(cfg *config.Config, stage string) ([]*domain.CheckpointRecord, error) {
	path := filepath.Join(cfg.CheckpointDir, stage+"_checkpoint.jsonl")
	log, err := checkpoint.Open(path, false)
	if err != nil {
		return nil, err
	}
	defer log.Close()
	return log.LoadAll()
}
