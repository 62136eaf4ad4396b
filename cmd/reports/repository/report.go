package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opensafely-core/reports/common/db"
	"github.com/opensafely-core/reports/common/models"
)

// ErrNotFound is returned when no report matches the query
var ErrNotFound = errors.New("report not found")

// Schema creates the reports table
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id UUID PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	publication_date DATE NOT NULL,
	is_draft BOOLEAN NOT NULL DEFAULT FALSE,
	repo TEXT NOT NULL DEFAULT '',
	branch TEXT NOT NULL DEFAULT '',
	report_html_file_path TEXT NOT NULL DEFAULT '',
	job_server_url TEXT NOT NULL DEFAULT '',
	use_git_blob BOOLEAN NOT NULL DEFAULT FALSE,
	last_updated DATE,
	cache_token UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const reportColumns = `
	id, slug, title, description, category, contact_email, publication_date,
	is_draft, repo, branch, report_html_file_path, job_server_url,
	use_git_blob, last_updated, cache_token, created_at, updated_at`

// ReportRepository handles database operations for reports
type ReportRepository struct {
	db *db.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *db.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// EnsureSchema applies the reports schema (development convenience)
func (r *ReportRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply reports schema: %w", err)
	}
	return nil
}

// Create inserts a new report
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (
			id, slug, title, description, category, contact_email,
			publication_date, is_draft, repo, branch, report_html_file_path,
			job_server_url, use_git_blob, last_updated, cache_token
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		report.ID,
		report.Slug,
		report.Title,
		report.Description,
		report.Category,
		report.ContactEmail,
		report.PublicationDate,
		report.IsDraft,
		report.Repo,
		report.Branch,
		report.ReportHTMLFilePath,
		report.JobServerURL,
		report.UseGitBlob,
		report.LastUpdated,
		report.CacheToken,
	).Scan(&report.CreatedAt, &report.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	return nil
}

// GetBySlug retrieves a report by slug
func (r *ReportRepository) GetBySlug(ctx context.Context, slug string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE slug = $1`

	report, err := r.scanReport(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return report, nil
}

// List retrieves all reports, optionally including drafts
func (r *ReportRepository) List(ctx context.Context, includeDrafts bool) ([]*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	if !includeDrafts {
		query += ` WHERE NOT is_draft`
	}
	query += ` ORDER BY publication_date DESC, slug`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		report, err := r.scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}

	return reports, nil
}

// Update persists all user-editable fields plus the cache token
func (r *ReportRepository) Update(ctx context.Context, report *models.Report) error {
	query := `
		UPDATE reports
		SET slug = $2, title = $3, description = $4, category = $5,
		    contact_email = $6, publication_date = $7, is_draft = $8,
		    repo = $9, branch = $10, report_html_file_path = $11,
		    job_server_url = $12, cache_token = $13, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		report.ID,
		report.Slug,
		report.Title,
		report.Description,
		report.Category,
		report.ContactEmail,
		report.PublicationDate,
		report.IsDraft,
		report.Repo,
		report.Branch,
		report.ReportHTMLFilePath,
		report.JobServerURL,
		report.CacheToken,
	).Scan(&report.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, report.Slug)
		}
		return fmt.Errorf("failed to update report: %w", err)
	}

	return nil
}

// SetUseGitBlob persists the blob-fallback latch for a report
func (r *ReportRepository) SetUseGitBlob(ctx context.Context, id uuid.UUID, useGitBlob bool) error {
	query := `UPDATE reports SET use_git_blob = $2, updated_at = now() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, useGitBlob); err != nil {
		return fmt.Errorf("failed to set use_git_blob: %w", err)
	}
	return nil
}

// SetLastUpdated persists the remote-resolved last-updated date for a report
func (r *ReportRepository) SetLastUpdated(ctx context.Context, id uuid.UUID, lastUpdated time.Time) error {
	query := `UPDATE reports SET last_updated = $2, updated_at = now() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, lastUpdated); err != nil {
		return fmt.Errorf("failed to set last_updated: %w", err)
	}
	return nil
}

// SetCacheToken persists a rotated cache token for a report
func (r *ReportRepository) SetCacheToken(ctx context.Context, id uuid.UUID, token uuid.UUID) error {
	query := `UPDATE reports SET cache_token = $2, updated_at = now() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, token); err != nil {
		return fmt.Errorf("failed to set cache_token: %w", err)
	}
	return nil
}

// Delete removes a report by slug
func (r *ReportRepository) Delete(ctx context.Context, slug string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reports WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return nil
}

func (r *ReportRepository) scanReport(row pgx.Row) (*models.Report, error) {
	report := &models.Report{}
	err := row.Scan(
		&report.ID,
		&report.Slug,
		&report.Title,
		&report.Description,
		&report.Category,
		&report.ContactEmail,
		&report.PublicationDate,
		&report.IsDraft,
		&report.Repo,
		&report.Branch,
		&report.ReportHTMLFilePath,
		&report.JobServerURL,
		&report.UseGitBlob,
		&report.LastUpdated,
		&report.CacheToken,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return report, nil
}
