package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nikhilgg/oss-transparency/internal/dataset"
)

// sqlStorage implements Storage over sqlite or postgres through one sqlx
// adapter. Queries are written with `?` placeholders and rebound for the
// active dialect.
type sqlStorage struct {
	db *sqlx.DB
}

// NewSQLite opens a sqlite-backed warehouse at path
func NewSQLite(path string) (Storage, error) {
	return open("sqlite3", path)
}

// NewPostgres opens a postgres-backed warehouse at the given URL
func NewPostgres(url string) (Storage, error) {
	return open("postgres", url)
}

func open(driver, dsn string) (Storage, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return &sqlStorage{db: db}, nil
}

var tableNames = []string{
	"repo_meta", "pull_requests", "bug_issues", "contributors",
	"governance", "vulns", "packages", "scorecards",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS repo_meta (
		repo_full_name TEXT NOT NULL,
		repo_id BIGINT,
		default_branch TEXT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		pushed_at TIMESTAMP,
		stars INTEGER NOT NULL,
		forks INTEGER NOT NULL,
		open_issues INTEGER NOT NULL,
		language TEXT,
		archived BOOLEAN NOT NULL,
		fork BOOLEAN NOT NULL,
		license TEXT,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS pull_requests (
		repo_full_name TEXT NOT NULL,
		pr_number INTEGER NOT NULL,
		pr_created_at TIMESTAMP,
		pr_closed_at TIMESTAMP,
		pr_merged_at TIMESTAMP,
		first_review_at TIMESTAMP,
		review_count INTEGER NOT NULL,
		author_association TEXT NOT NULL,
		latency_first_review_hours DOUBLE PRECISION,
		latency_merge_hours DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS bug_issues (
		repo_full_name TEXT NOT NULL,
		issue_number INTEGER NOT NULL,
		created_at TIMESTAMP,
		closed_at TIMESTAMP,
		mttr_days DOUBLE PRECISION,
		state TEXT NOT NULL,
		comments INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contributors (
		repo_full_name TEXT NOT NULL,
		contributor_login TEXT NOT NULL,
		contributions INTEGER NOT NULL,
		type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS governance (
		repo_full_name TEXT NOT NULL,
		has_security BOOLEAN NOT NULL,
		has_coc BOOLEAN NOT NULL,
		has_contributing BOOLEAN NOT NULL,
		has_codeowners BOOLEAN NOT NULL,
		has_funding BOOLEAN NOT NULL,
		governance_artifact_score DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS vulns (
		package_name TEXT NOT NULL,
		osv_id TEXT NOT NULL,
		published TEXT,
		modified TEXT,
		summary TEXT NOT NULL,
		details TEXT NOT NULL,
		severity_raw TEXT,
		refs TEXT NOT NULL,
		aliases TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS packages (
		package_name TEXT NOT NULL,
		pypi_name TEXT NOT NULL,
		version_latest TEXT NOT NULL,
		summary TEXT NOT NULL,
		github_url TEXT NOT NULL,
		repo_full_name TEXT NOT NULL,
		license TEXT NOT NULL,
		requires_python TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scorecards (
		repo_full_name TEXT NOT NULL,
		scorecard_score DOUBLE PRECISION,
		checks TEXT NOT NULL
	)`,
}

// Migrate creates the output tables if they do not exist
func (s *sqlStorage) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveDataset replaces all table contents with the given rebuild inside one
// transaction
func (s *sqlStorage) SaveDataset(ctx context.Context, d *dataset.Dataset) error {
	d.Sort()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tableNames {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := s.insertRows(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStorage) insertRows(ctx context.Context, tx *sqlx.Tx, d *dataset.Dataset) error {
	for _, m := range d.RepoMeta {
		q := tx.Rebind(`INSERT INTO repo_meta (repo_full_name, repo_id, default_branch,
			created_at, updated_at, pushed_at, stars, forks, open_issues, language,
			archived, fork, license, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, m.RepoFullName, m.RepoID, m.DefaultBranch,
			m.CreatedAt, m.UpdatedAt, m.PushedAt, m.Stars, m.Forks, m.OpenIssues,
			m.Language, m.Archived, m.Fork, m.License, m.Error); err != nil {
			return fmt.Errorf("insert repo_meta: %w", err)
		}
	}
	for _, p := range d.PullRequests {
		q := tx.Rebind(`INSERT INTO pull_requests (repo_full_name, pr_number,
			pr_created_at, pr_closed_at, pr_merged_at, first_review_at, review_count,
			author_association, latency_first_review_hours, latency_merge_hours)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, p.RepoFullName, p.Number, p.CreatedAt,
			p.ClosedAt, p.MergedAt, p.FirstReviewAt, p.ReviewCount,
			p.AuthorAssociation, p.LatencyFirstReviewHours, p.LatencyMergeHours); err != nil {
			return fmt.Errorf("insert pull_requests: %w", err)
		}
	}
	for _, b := range d.BugIssues {
		q := tx.Rebind(`INSERT INTO bug_issues (repo_full_name, issue_number,
			created_at, closed_at, mttr_days, state, comments)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, b.RepoFullName, b.Number, b.CreatedAt,
			b.ClosedAt, b.MTTRDays, b.State, b.Comments); err != nil {
			return fmt.Errorf("insert bug_issues: %w", err)
		}
	}
	for _, c := range d.Contributors {
		q := tx.Rebind(`INSERT INTO contributors (repo_full_name, contributor_login,
			contributions, type) VALUES (?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, c.RepoFullName, c.Login, c.Contributions, c.Type); err != nil {
			return fmt.Errorf("insert contributors: %w", err)
		}
	}
	for _, g := range d.Governance {
		q := tx.Rebind(`INSERT INTO governance (repo_full_name, has_security, has_coc,
			has_contributing, has_codeowners, has_funding, governance_artifact_score)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, g.RepoFullName, g.HasSecurity,
			g.HasCodeOfConduct, g.HasContributing, g.HasCodeowners, g.HasFunding,
			g.ArtifactScore); err != nil {
			return fmt.Errorf("insert governance: %w", err)
		}
	}
	for _, v := range d.Vulns {
		q := tx.Rebind(`INSERT INTO vulns (package_name, osv_id, published, modified,
			summary, details, severity_raw, refs, aliases)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, v.PackageName, v.OSVID, v.Published,
			v.Modified, v.Summary, v.Details, v.SeverityRaw, v.References, v.Aliases); err != nil {
			return fmt.Errorf("insert vulns: %w", err)
		}
	}
	for _, p := range d.Packages {
		q := tx.Rebind(`INSERT INTO packages (package_name, pypi_name, version_latest,
			summary, github_url, repo_full_name, license, requires_python)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, p.PackageName, p.RegistryName,
			p.LatestVersion, p.Summary, p.GitHubURL, p.RepoFullName, p.License,
			p.RequiresPython); err != nil {
			return fmt.Errorf("insert packages: %w", err)
		}
	}
	for _, sc := range d.Scorecards {
		checks, err := json.Marshal(sc.Checks)
		if err != nil {
			return fmt.Errorf("encode scorecard checks: %w", err)
		}
		q := tx.Rebind(`INSERT INTO scorecards (repo_full_name, scorecard_score, checks)
			VALUES (?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, sc.RepoFullName, sc.Score, string(checks)); err != nil {
			return fmt.Errorf("insert scorecards: %w", err)
		}
	}
	return nil
}

// TableCounts reports the stored row count per table
func (s *sqlStorage) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(tableNames))
	for _, table := range tableNames {
		var n int
		if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Close releases the underlying connection
func (s *sqlStorage) Close() error {
	return s.db.Close()
}
