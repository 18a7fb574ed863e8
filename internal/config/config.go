package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubTokens     []string
	GitHubAPIURL     string
	GitHubGraphQLURL string

	// Collection
	Workers       int
	CheckpointDir string
	OutputDir     string
	PackagesFile  string
	ScorecardDir  string
	PyPITopN      int

	// Warehouse sink
	StorageDriver string // "", "sqlite" or "postgres"
	SQLitePath    string
	PostgresURL   string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string
}

// settings is the optional YAML overlay (settings.yaml) mirroring the
// environment configuration for reproducible research runs
type settings struct {
	Outputs struct {
		OutDir string `yaml:"outdir"`
	} `yaml:"outputs"`
	Sampling struct {
		PyPITopN int `yaml:"pypi_top_n"`
	} `yaml:"sampling"`
	GitHub struct {
		MaxWorkers    int    `yaml:"max_workers"`
		CheckpointDir string `yaml:"checkpoint_dir"`
	} `yaml:"github"`
}

// Load loads the configuration from environment variables, an optional .env
// file, and an optional settings.yaml overlay
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		GitHubTokens:     splitTokens(getEnv("GITHUB_TOKENS", getEnv("GITHUB_TOKEN_PAT", ""))),
		GitHubAPIURL:     getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubGraphQLURL: getEnv("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		Workers:          getEnvInt("COLLECT_WORKERS", 3),
		CheckpointDir:    getEnv("CHECKPOINT_DIR", "./outputs/checkpoints"),
		OutputDir:        getEnv("OUTPUT_DIR", "./outputs"),
		PackagesFile:     getEnv("PACKAGES_FILE", "./data/samples/pypi_packages.txt"),
		ScorecardDir:     getEnv("SCORECARD_DIR", "./outputs/scorecard"),
		PyPITopN:         getEnvInt("PYPI_TOP_N", 500),
		StorageDriver:    getEnv("STORAGE_DRIVER", ""),
		SQLitePath:       getEnv("SQLITE_PATH", "./outputs/transparency.db"),
		PostgresURL:      getEnv("POSTGRES_URL", ""),
		APIPort:          getEnv("API_PORT", "8080"),
		APIHost:          getEnv("API_HOST", "localhost"),
		APIEndpoint:      getEnv("API_ENDPOINT", "http://localhost:8080"),
	}

	if path := getEnv("SETTINGS_FILE", "settings.yaml"); path != "" {
		if err := cfg.applySettings(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applySettings overlays values from a YAML settings file, if present
func (c *Config) applySettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ConfigError{Field: "SETTINGS_FILE", Message: err.Error()}
	}

	var s settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return &ConfigError{Field: "SETTINGS_FILE", Message: "invalid YAML: " + err.Error()}
	}

	if s.Outputs.OutDir != "" {
		c.OutputDir = s.Outputs.OutDir
	}
	if s.Sampling.PyPITopN > 0 {
		c.PyPITopN = s.Sampling.PyPITopN
	}
	if s.GitHub.MaxWorkers > 0 {
		c.Workers = s.GitHub.MaxWorkers
	}
	if s.GitHub.CheckpointDir != "" {
		c.CheckpointDir = s.GitHub.CheckpointDir
	}
	return nil
}

// ValidateForGitHub validates the configuration for stages that call the
// GitHub API. Zero configured tokens is fatal: there is nothing to rotate.
func (c *Config) ValidateForGitHub() error {
	if len(c.GitHubTokens) == 0 {
		return &ConfigError{Field: "GITHUB_TOKENS", Message: "at least one GitHub token is required"}
	}
	return c.Validate()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return &ConfigError{Field: "COLLECT_WORKERS", Message: "must be at least 1"}
	}
	switch c.StorageDriver {
	case "", "sqlite", "postgres":
	default:
		return &ConfigError{Field: "STORAGE_DRIVER", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageDriver == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_DRIVER is 'postgres'"}
	}
	return nil
}

func splitTokens(raw string) []string {
	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
