package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensafely-core/reports/common/config"
	"github.com/opensafely-core/reports/common/jobserver"
	"github.com/opensafely-core/reports/common/logger"
	"github.com/opensafely-core/reports/common/models"
)

var testDate = time.Date(2021, 5, 10, 0, 0, 0, 0, time.UTC)

// fakeRepoStore is an in-memory Store
type fakeRepoStore struct {
	reports map[string]*models.Report
	creates int
	updates int
}

func newFakeRepoStore(reports ...*models.Report) *fakeRepoStore {
	s := &fakeRepoStore{reports: make(map[string]*models.Report)}
	for _, r := range reports {
		cp := *r
		s.reports[r.Slug] = &cp
	}
	return s
}

func (s *fakeRepoStore) Create(_ context.Context, report *models.Report) error {
	s.creates++
	cp := *report
	s.reports[report.Slug] = &cp
	return nil
}

func (s *fakeRepoStore) GetBySlug(_ context.Context, slug string) (*models.Report, error) {
	r, ok := s.reports[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRepoStore) List(_ context.Context, includeDrafts bool) ([]*models.Report, error) {
	var out []*models.Report
	for _, r := range s.reports {
		if r.IsDraft && !includeDrafts {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeRepoStore) Update(_ context.Context, report *models.Report) error {
	s.updates++
	cp := *report
	delete(s.reports, s.slugOf(report.ID))
	s.reports[report.Slug] = &cp
	return nil
}

func (s *fakeRepoStore) SetUseGitBlob(_ context.Context, id uuid.UUID, useGitBlob bool) error {
	if r, ok := s.reports[s.slugOf(id)]; ok {
		r.UseGitBlob = useGitBlob
	}
	return nil
}

func (s *fakeRepoStore) SetLastUpdated(_ context.Context, id uuid.UUID, lastUpdated time.Time) error {
	if r, ok := s.reports[s.slugOf(id)]; ok {
		r.LastUpdated = &lastUpdated
	}
	return nil
}

func (s *fakeRepoStore) SetCacheToken(_ context.Context, id uuid.UUID, token uuid.UUID) error {
	if r, ok := s.reports[s.slugOf(id)]; ok {
		r.CacheToken = token
	}
	return nil
}

func (s *fakeRepoStore) Delete(_ context.Context, slug string) error {
	if _, ok := s.reports[slug]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	delete(s.reports, slug)
	return nil
}

func (s *fakeRepoStore) slugOf(id uuid.UUID) string {
	for slug, r := range s.reports {
		if r.ID == id {
			return slug
		}
	}
	return ""
}

// sourceRecorder observes every backend the service resolves
type sourceRecorder struct {
	html    string
	err     error
	fetches int
	// cleared holds the resolution identity of each record whose upstream
	// cache was cleared, in call order
	cleared []string
}

type fakeSource struct {
	rec    *sourceRecorder
	record *models.Report
}

func (f *fakeSource) GetHTML(_ context.Context) (string, error) {
	f.rec.fetches++
	if f.rec.err != nil {
		return "", f.rec.err
	}
	return f.rec.html, nil
}

func (f *fakeSource) LastUpdated(_ context.Context) (time.Time, error) {
	return testDate, nil
}

func (f *fakeSource) ClearCache(_ context.Context) error {
	identity := f.record.JobServerURL
	if f.record.UsesGitHub() {
		identity = f.record.Repo
	}
	f.rec.cleared = append(f.rec.cleared, identity)
	return nil
}

func newTestService(store Store, rec *sourceRecorder) *ReportService {
	return NewReportService(store, nil, nil, nil, logger.New("error", "json"),
		WithSourceFactory(func(record *models.Report) Source {
			return &fakeSource{rec: rec, record: record}
		}))
}

func githubRecord() *models.Report {
	return &models.Report{
		ID:                 uuid.New(),
		Slug:               "vaccine-coverage",
		Title:              "Vaccine coverage",
		Repo:               "test-repo",
		Branch:             "master",
		ReportHTMLFilePath: "test-outputs/report.html",
		CacheToken:         uuid.New(),
	}
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	record := githubRecord()
	store := newFakeRepoStore(record)
	rec := &sourceRecorder{html: `<h1>Results</h1><script>evil()</script><table><tr><td>1</td></tr></table>`}
	svc := newTestService(store, rec)

	rendered, err := svc.Render(ctx, record.Slug, false)
	require.NoError(t, err)

	assert.Equal(t, record.Slug, rendered.Report.Slug)
	assert.Equal(t, testDate, rendered.LastUpdated)
	assert.NotContains(t, rendered.HTML, "evil")
	assert.Contains(t, rendered.HTML, "overflow-wrapper")
	assert.Contains(t, rendered.HTML, "Results")
	assert.Equal(t, 1, rec.fetches)
}

func TestRenderHidesDrafts(t *testing.T) {
	ctx := context.Background()
	record := githubRecord()
	record.IsDraft = true
	store := newFakeRepoStore(record)
	svc := newTestService(store, &sourceRecorder{html: "<p>draft</p>"})

	_, err := svc.Render(ctx, record.Slug, false)
	assert.ErrorIs(t, err, ErrNotFound)

	rendered, err := svc.Render(ctx, record.Slug, true)
	require.NoError(t, err)
	assert.Contains(t, rendered.HTML, "draft")
}

func TestListHidesDrafts(t *testing.T) {
	ctx := context.Background()
	public := githubRecord()
	draft := githubRecord()
	draft.Slug = "draft-report"
	draft.IsDraft = true
	store := newFakeRepoStore(public, draft)
	svc := newTestService(store, &sourceRecorder{})

	visible, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	store := newFakeRepoStore()
	rec := &sourceRecorder{html: "<p>exists</p>"}
	svc := newTestService(store, rec)

	report := githubRecord()
	report.ID = uuid.Nil
	report.UseGitBlob = true

	require.NoError(t, svc.Create(ctx, report))
	assert.NotEqual(t, uuid.Nil, report.ID)
	assert.NotEqual(t, uuid.Nil, report.CacheToken)
	assert.False(t, report.UseGitBlob, "the blob latch belongs to the fetch cycle, not the caller")
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, rec.fetches, "creation must confirm the remote file exists")
}

func TestCreateRejectsMissingRemoteFile(t *testing.T) {
	ctx := context.Background()
	store := newFakeRepoStore()
	rec := &sourceRecorder{err: errors.New("not found")}
	svc := newTestService(store, rec)

	err := svc.Create(ctx, githubRecord())
	require.Error(t, err)
	assert.Equal(t, 0, store.creates)
}

func TestCreateJobServerValidation(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "gone") {
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := &config.Config{
		JobServer: config.JobServerConfig{UserAgent: "reports", Timeout: time.Second},
	}
	log := logger.New("error", "json")
	jobServerClient := jobserver.NewClient(cfg, nil, log)

	newSvc := func(store Store) *ReportService {
		return NewReportService(store, nil, jobServerClient, nil, log)
	}

	base := func() *models.Report {
		return &models.Report{
			Slug:         "job-server-report",
			Title:        "Job server report",
			JobServerURL: srv.URL + "/output/published/report.html",
			IsDraft:      false,
		}
	}

	t.Run("published output accepted", func(t *testing.T) {
		store := newFakeRepoStore()
		require.NoError(t, newSvc(store).Create(ctx, base()))
		assert.Equal(t, 1, store.creates)
	})

	t.Run("missing file rejected", func(t *testing.T) {
		report := base()
		report.JobServerURL = srv.URL + "/output/published/gone.html"
		err := newSvc(newFakeRepoStore()).Create(ctx, report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no file found")
	})

	t.Run("unpublished output requires draft", func(t *testing.T) {
		report := base()
		report.JobServerURL = srv.URL + "/output/123/report.html"
		err := newSvc(newFakeRepoStore()).Create(ctx, report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unpublished")

		report.IsDraft = true
		require.NoError(t, newSvc(newFakeRepoStore()).Create(ctx, report))
	})

	t.Run("disallowed host rejected", func(t *testing.T) {
		store := newFakeRepoStore()
		svc := NewReportService(store, nil, jobServerClient, []string{"jobs.example.org"}, log)
		err := svc.Create(ctx, base())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not an allowed")
	})
}
