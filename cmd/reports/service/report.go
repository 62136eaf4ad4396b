package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensafely-core/reports/common/github"
	"github.com/opensafely-core/reports/common/jobserver"
	"github.com/opensafely-core/reports/common/logger"
	"github.com/opensafely-core/reports/common/models"
	"github.com/opensafely-core/reports/common/sanitize"
)

// ErrNotFound is returned when a report does not exist or is not visible
var ErrNotFound = errors.New("report not found")

// Store persists reports. Satisfied by repository.ReportRepository.
type Store interface {
	Create(ctx context.Context, report *models.Report) error
	GetBySlug(ctx context.Context, slug string) (*models.Report, error)
	List(ctx context.Context, includeDrafts bool) ([]*models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	SetUseGitBlob(ctx context.Context, id uuid.UUID, useGitBlob bool) error
	SetLastUpdated(ctx context.Context, id uuid.UUID, lastUpdated time.Time) error
	SetCacheToken(ctx context.Context, id uuid.UUID, token uuid.UUID) error
	Delete(ctx context.Context, slug string) error
}

// Source is one report's remote backend, resolved once per request from
// which record fields are populated. Exactly one of the two backends applies
// to any record.
type Source interface {
	GetHTML(ctx context.Context) (string, error)
	LastUpdated(ctx context.Context) (time.Time, error)
	ClearCache(ctx context.Context) error
}

// RenderedReport is a fetched, sanitized report ready for display
type RenderedReport struct {
	Report      *models.Report
	HTML        string
	LastUpdated time.Time
}

// ReportService owns the fetch/sanitize/invalidate lifecycle of reports
type ReportService struct {
	store        Store
	github       *github.Client
	jobServer    *jobserver.Client
	allowedHosts []string
	log          *logger.Logger

	// newSource overrides backend construction in tests
	newSource func(record *models.Report) Source
}

// Option configures optional service behaviour
type Option func(*ReportService)

// WithSourceFactory replaces backend construction, for tests
func WithSourceFactory(fn func(record *models.Report) Source) Option {
	return func(s *ReportService) {
		s.newSource = fn
	}
}

// NewReportService creates a new report service
func NewReportService(store Store, githubClient *github.Client, jobServerClient *jobserver.Client, allowedHosts []string, log *logger.Logger, opts ...Option) *ReportService {
	s := &ReportService{
		store:        store,
		github:       githubClient,
		jobServer:    jobServerClient,
		allowedHosts: allowedHosts,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// source resolves the backend for a record: job_server_url empty means
// GitHub-hosted, otherwise the job server
func (s *ReportService) source(record *models.Report) Source {
	if s.newSource != nil {
		return s.newSource(record)
	}
	if record.UsesGitHub() {
		return github.NewReport(s.github, record, s.store)
	}
	return jobserver.NewReport(s.jobServer, record, s.store)
}

// Get returns one report record, hiding drafts unless asked
func (s *ReportService) Get(ctx context.Context, slug string, includeDrafts bool) (*models.Report, error) {
	record, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if record.IsDraft && !includeDrafts {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return record, nil
}

// List returns report records, hiding drafts unless asked
func (s *ReportService) List(ctx context.Context, includeDrafts bool) ([]*models.Report, error) {
	return s.store.List(ctx, includeDrafts)
}

// Render runs one full display cycle for a report: resolve the backend,
// fetch the HTML, persist provenance changes, and sanitize for embedding
func (s *ReportService) Render(ctx context.Context, slug string, includeDrafts bool) (*RenderedReport, error) {
	record, err := s.Get(ctx, slug, includeDrafts)
	if err != nil {
		return nil, err
	}

	src := s.source(record)

	raw, err := src.GetHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch report %s: %w", slug, err)
	}

	safe, err := sanitize.ProcessHTML(raw)
	if err != nil {
		return nil, fmt.Errorf("sanitize report %s: %w", slug, err)
	}

	// Memoized by the source, so this reflects the fetch above
	lastUpdated, err := src.LastUpdated(ctx)
	if err != nil {
		return nil, err
	}

	return &RenderedReport{
		Report:      record,
		HTML:        safe,
		LastUpdated: lastUpdated,
	}, nil
}

// Create validates and stores a new report. Validation fetches the remote
// file, so a record pointing at a missing file is rejected up front.
func (s *ReportService) Create(ctx context.Context, report *models.Report) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.CacheToken = uuid.New()
	report.UseGitBlob = false
	report.LastUpdated = nil

	if err := s.validate(ctx, report); err != nil {
		return err
	}

	return s.store.Create(ctx, report)
}

// Delete removes a report record. Cached upstream responses are left to
// expire; nothing references them once the record is gone.
func (s *ReportService) Delete(ctx context.Context, slug string) error {
	return s.store.Delete(ctx, slug)
}

// validate enforces the model invariants and confirms the remote file exists
func (s *ReportService) validate(ctx context.Context, report *models.Report) error {
	if err := report.Validate(); err != nil {
		return err
	}

	if report.UsesGitHub() {
		if _, err := s.source(report).GetHTML(ctx); err != nil {
			return fmt.Errorf("report file could not be found at %s/%s on branch %s: %w",
				report.Repo, report.ReportHTMLFilePath, report.Branch, err)
		}
		return nil
	}

	if err := jobserver.ValidateURL(report.JobServerURL, s.allowedHosts); err != nil {
		return err
	}

	exists, err := s.jobServer.FileExists(ctx, report.JobServerURL)
	if err != nil {
		return fmt.Errorf("check job server file: %w", err)
	}
	if !exists {
		return fmt.Errorf("no file found at %s", report.JobServerURL)
	}

	// Unpublished outputs may churn or disappear; only drafts may use them
	if !strings.Contains(report.JobServerURL, "published") && !report.IsDraft {
		return fmt.Errorf("unpublished outputs cannot be used in public reports: " +
			"either set the report to draft or use a published output")
	}

	return nil
}
