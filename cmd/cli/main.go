package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nikhilgg/oss-transparency/internal/api"
	"github.com/nikhilgg/oss-transparency/internal/checkpoint"
	"github.com/nikhilgg/oss-transparency/internal/collector"
	"github.com/nikhilgg/oss-transparency/internal/config"
	"github.com/nikhilgg/oss-transparency/internal/dataset"
	"github.com/nikhilgg/oss-transparency/internal/domain"
	"github.com/nikhilgg/oss-transparency/internal/ghclient"
	"github.com/nikhilgg/oss-transparency/internal/storage"
	"github.com/nikhilgg/oss-transparency/internal/tokens"
	"github.com/nikhilgg/oss-transparency/pkg/client"
)

var (
	workers       int
	retryFailures bool
	reposFile     string
	storeFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "oss-transparency",
	Short: "OSS transparency data collection pipeline",
	Long: `A resilient collection pipeline for open-source transparency research.

The pipeline resolves registry packages to GitHub repositories, then collects
activity, governance, and vulnerability signals per repository against
rate-limited APIs. Every stage checkpoints per-unit results to an append-only
log, so interrupted runs resume without losing completed work, and the final
datasets are always rebuilt from the full log.`,
}

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "Resolve registry packages to GitHub repositories",
	Long:  `Fetch registry metadata for the curated package list and build the package-to-repository master table.`,
	RunE:  runPackages,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect GitHub activity signals",
	Long:  `Collect repository metadata, pull requests, bug issues, and contributors for every repository in the master table (or a supplied repository list).`,
	RunE:  runCollect,
}

var governanceCmd = &cobra.Command{
	Use:   "governance",
	Short: "Check governance artifacts",
	Long:  `Detect governance files (security policy, code of conduct, contributing guide, CODEOWNERS, funding) for every collected repository.`,
	RunE:  runGovernance,
}

var vulnsCmd = &cobra.Command{
	Use:   "vulns",
	Short: "Collect known vulnerabilities",
	Long:  `Query the OSV database for known vulnerabilities of every resolved package.`,
	RunE:  runVulns,
}

var scorecardCmd = &cobra.Command{
	Use:   "scorecard",
	Short: "Ingest OpenSSF Scorecard results",
	Long:  `Parse locally produced Scorecard JSON files into a flat results table.`,
	RunE:  runScorecard,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the aggregate dataset from checkpoint logs",
	Long: `Rebuild all output tables from the complete checkpoint logs and write
them as CSV files. With --store, additionally load them into the configured
SQL warehouse.`,
	RunE: runRebuild,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rebuilt dataset over HTTP",
	Long:  `Rebuild the aggregate dataset from the checkpoint logs and serve it read-only.`,
	RunE:  runServe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dataset server status",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "number of concurrent workers (default from config)")
	rootCmd.PersistentFlags().BoolVar(&retryFailures, "retry-failures", false, "reattempt units that errored in earlier runs")

	collectCmd.Flags().StringVar(&reposFile, "repos-file", "", "file with one owner/name per line (default: derive from the packages stage)")
	rebuildCmd.Flags().BoolVar(&storeFlag, "store", false, "also load the rebuilt tables into the SQL warehouse")

	rootCmd.AddCommand(packagesCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(governanceCmd)
	rootCmd.AddCommand(vulnsCmd)
	rootCmd.AddCommand(scorecardCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	return cfg, nil
}

// signalContext cancels on interrupt: the dispatcher stops submitting new
// units and lets in-flight units finish.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openLog(cfg *config.Config, stage string) (*checkpoint.Log, error) {
	path := filepath.Join(cfg.CheckpointDir, stage+"_checkpoint.jsonl")
	log, err := checkpoint.Open(path, retryFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint log: %w", err)
	}
	return log, nil
}

func loadStageRecords(cfg *config.Config, stage string) ([]*domain.CheckpointRecord, error) {
	log, err := openLog(cfg, stage)
	if err != nil {
		return nil, err
	}
	defer log.Close()
	return log.LoadAll()
}

func runStage(cfg *config.Config, handler collector.UnitHandler, pool *tokens.Pool, units []string) error {
	log, err := openLog(cfg, handler.Stage())
	if err != nil {
		return err
	}
	defer log.Close()

	logger := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	dispatcher := collector.NewDispatcher(handler, log, pool, cfg.Workers, logger)
	summary, err := dispatcher.Run(ctx, units)
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func printSummary(summary *domain.RunSummary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Stage", "Total", "Done", "Skipped", "Errored", "Remaining", "Duration"})
	table.Append([]string{
		summary.Stage,
		strconv.Itoa(summary.Total),
		strconv.Itoa(summary.Done),
		strconv.Itoa(summary.Skipped),
		strconv.Itoa(summary.Errored),
		strconv.Itoa(summary.Remaining),
		summary.Duration.Round(time.Second).String(),
	})
	table.Render()

	if summary.Errored > 0 {
		fmt.Printf("Note: %d unit(s) errored; inspect the checkpoint log and re-run with --retry-failures to reattempt them.\n", summary.Errored)
	}
}

func runPackages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	units, err := collector.ReadUnitsFile(cfg.PackagesFile)
	if err != nil {
		return fmt.Errorf("failed to read package list %s: %w", cfg.PackagesFile, err)
	}
	if len(units) > cfg.PyPITopN {
		units = units[:cfg.PyPITopN]
	}
	if len(units) == 0 {
		return fmt.Errorf("package list %s is empty", cfg.PackagesFile)
	}

	handler := collector.NewPyPICollector(ghclient.NewPublicClient(newLogger()))
	return runStage(cfg, handler, nil, units)
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForGitHub(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var units []string
	if reposFile != "" {
		units, err = collector.ReadUnitsFile(reposFile)
		if err != nil {
			return fmt.Errorf("failed to read repos file %s: %w", reposFile, err)
		}
	} else {
		records, err := loadStageRecords(cfg, "pypi")
		if err != nil {
			return err
		}
		units = dataset.RepoUnitsFromPackages(records)
	}
	if len(units) == 0 {
		return fmt.Errorf("no repositories to collect; run the packages stage first or pass --repos-file")
	}

	logger := newLogger()
	pool, err := tokens.NewPool(cfg.GitHubTokens, logger)
	if err != nil {
		return err
	}
	logger.Info("token pool ready", "tokens", pool.Size())

	gh := ghclient.NewClient(pool, cfg.GitHubGraphQLURL, logger)
	handler := collector.NewGitHubCollector(gh, pool, logger)
	return runStage(cfg, handler, pool, units)
}

func runGovernance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForGitHub(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	records, err := loadStageRecords(cfg, "github")
	if err != nil {
		return err
	}
	units := dataset.RepoUnitsFromMeta(records)
	if len(units) == 0 {
		return fmt.Errorf("no collected repositories found; run the collect stage first")
	}

	logger := newLogger()
	pool, err := tokens.NewPool(cfg.GitHubTokens, logger)
	if err != nil {
		return err
	}

	gh := ghclient.NewClient(pool, cfg.GitHubGraphQLURL, logger)
	handler := collector.NewGovernanceChecker(gh)
	return runStage(cfg, handler, pool, units)
}

func runVulns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	records, err := loadStageRecords(cfg, "pypi")
	if err != nil {
		return err
	}
	units := dataset.PackageUnits(records)
	if len(units) == 0 {
		return fmt.Errorf("no resolved packages found; run the packages stage first")
	}

	handler := collector.NewOSVCollector(ghclient.NewPublicClient(newLogger()))
	return runStage(cfg, handler, nil, units)
}

func runScorecard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rows, err := collector.LoadScorecardDir(cfg.ScorecardDir)
	if err != nil {
		return fmt.Errorf("failed to read scorecard dir %s: %w", cfg.ScorecardDir, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no scorecard results found in %s", cfg.ScorecardDir)
	}

	data := dataset.New()
	data.SetScorecards(rows)
	if err := data.WriteCSV(cfg.OutputDir); err != nil {
		return err
	}
	fmt.Printf("scorecard_results: %d rows\n", len(rows))
	return nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := rebuildDataset(cfg)
	if err != nil {
		return err
	}

	if err := data.WriteCSV(cfg.OutputDir); err != nil {
		return fmt.Errorf("failed to write datasets: %w", err)
	}
	printDatasetCounts(data)

	if storeFlag {
		if err := storeDataset(cfg, data); err != nil {
			return err
		}
	}
	return nil
}

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
			return nil, err
		}
		stage.add(records)
	}

	rows, err := collector.LoadScorecardDir(cfg.ScorecardDir)
	if err == nil && len(rows) > 0 {
		data.SetScorecards(rows)
	}
	return data, nil
}

func printDatasetCounts(data *dataset.Dataset) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Table", "Rows"})
	for _, entry := range []struct {
		name string
		n    int
	}{
		{"github_repo_meta", len(data.RepoMeta)},
		{"github_prs", len(data.PullRequests)},
		{"github_bug_issues", len(data.BugIssues)},
		{"github_contributors", len(data.Contributors)},
		{"governance_artifacts", len(data.Governance)},
		{"osv_vulns_raw", len(data.Vulns)},
		{"pypi_repo_master", len(data.Packages)},
		{"scorecard_results", len(data.Scorecards)},
	} {
		table.Append([]string{entry.name, strconv.Itoa(entry.n)})
	}
	table.Render()
}

func storeDataset(cfg *config.Config, data *dataset.Dataset) error {
	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if err := store.SaveDataset(ctx, data); err != nil {
		return fmt.Errorf("failed to store dataset: %w", err)
	}
	fmt.Println("Dataset loaded into warehouse.")
	return nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case "postgres":
		return storage.NewPostgres(cfg.PostgresURL)
	default:
		return storage.NewSQLite(cfg.SQLitePath)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := rebuildDataset(cfg)
	if err != nil {
		return err
	}

	router := api.SetupRoutes(api.NewHandler(data))
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	newLogger().Info("starting dataset server", "addr", addr)
	return router.Run(addr)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c := client.NewClient(cfg.APIEndpoint)
	if err := c.Health(); err != nil {
		return err
	}

	summary, err := c.GetSummary()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Table", "Rows"})
	table.Append([]string{"repo_meta", strconv.Itoa(summary.RepoMeta)})
	table.Append([]string{"pull_requests", strconv.Itoa(summary.PullRequests)})
	table.Append([]string{"bug_issues", strconv.Itoa(summary.BugIssues)})
	table.Append([]string{"contributors", strconv.Itoa(summary.Contributors)})
	table.Append([]string{"governance", strconv.Itoa(summary.Governance)})
	table.Append([]string{"vulns", strconv.Itoa(summary.Vulns)})
	table.Append([]string{"packages", strconv.Itoa(summary.Packages)})
	table.Append([]string{"scorecards", strconv.Itoa(summary.Scorecards)})
	table.Render()
	return nil
}
