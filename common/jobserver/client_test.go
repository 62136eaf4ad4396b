package jobserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensafely-core/reports/common/config"
	"github.com/opensafely-core/reports/common/logger"
	"github.com/opensafely-core/reports/common/models"
)

const outputHTML = "<p>output</p>"

type fakeStore struct {
	lastUpdated []time.Time
}

func (s *fakeStore) SetLastUpdated(_ context.Context, _ uuid.UUID, t time.Time) error {
	s.lastUpdated = append(s.lastUpdated, t)
	return nil
}

func newTestServer(t *testing.T) (*Client, *httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/output/published/report.html":
			w.Header().Set("Last-Modified", "Mon, 10 May 2021 14:30:00 GMT")
			if r.Method != http.MethodHead {
				_, _ = w.Write([]byte(outputHTML))
			}
		case "/output/no-last-modified.html":
			_, _ = w.Write([]byte(outputHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		JobServer: config.JobServerConfig{
			Token:     "test-token",
			UserAgent: "reports",
			Timeout:   time.Second,
		},
	}
	return NewClient(cfg, nil, logger.New("error", "json")), srv, &hits
}

func TestFileExists(t *testing.T) {
	ctx := context.Background()
	client, srv, _ := newTestServer(t)

	exists, err := client.FileExists(ctx, srv.URL+"/output/published/report.html")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.FileExists(ctx, srv.URL+"/output/gone.html")
	require.NoError(t, err)
	assert.False(t, exists, "a 404 is a false return, not an error")
}

func TestGetFile(t *testing.T) {
	ctx := context.Background()
	client, srv, _ := newTestServer(t)

	body, lastModified, err := client.GetFile(ctx, srv.URL+"/output/published/report.html")
	require.NoError(t, err)
	assert.Equal(t, outputHTML, body)
	assert.Equal(t, time.Date(2021, 5, 10, 14, 30, 0, 0, time.UTC), lastModified.UTC())
}

func TestGetFileMissingLastModified(t *testing.T) {
	ctx := context.Background()
	client, srv, _ := newTestServer(t)

	_, _, err := client.GetFile(ctx, srv.URL+"/output/no-last-modified.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Last-Modified")
}

func TestGetFileNotFound(t *testing.T) {
	ctx := context.Background()
	client, srv, _ := newTestServer(t)

	_, _, err := client.GetFile(ctx, srv.URL+"/output/gone.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestRequestHeaders(t *testing.T) {
	ctx := context.Background()

	var gotUA, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Last-Modified", "Mon, 10 May 2021 14:30:00 GMT")
	}))
	defer srv.Close()

	cfg := &config.Config{
		JobServer: config.JobServerConfig{Token: "secret", UserAgent: "reports", Timeout: time.Second},
	}
	client := NewClient(cfg, nil, logger.New("error", "json"))

	_, _, err := client.GetFile(ctx, srv.URL+"/output/published/report.html")
	require.NoError(t, err)
	assert.Equal(t, "reports", gotUA)
	assert.Equal(t, "secret", gotAuth)
}

func TestReportGetHTML(t *testing.T) {
	ctx := context.Background()
	client, srv, hits := newTestServer(t)
	store := &fakeStore{}

	record := &models.Report{
		ID:           uuid.New(),
		Slug:         "job-server-report",
		JobServerURL: srv.URL + "/output/published/report.html",
	}
	report := NewReport(client, record, store)

	html, err := report.GetHTML(ctx)
	require.NoError(t, err)
	assert.Equal(t, outputHTML, html)

	want := time.Date(2021, 5, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{want}, store.lastUpdated)

	// Memoized: no second request, and the date reflects the same fetch
	_, err = report.GetHTML(ctx)
	require.NoError(t, err)
	lastUpdated, err := report.LastUpdated(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, lastUpdated)
	assert.Equal(t, int32(1), hits.Load())
}

func TestReportLastUpdatedUnchangedNotRewritten(t *testing.T) {
	ctx := context.Background()
	client, srv, _ := newTestServer(t)
	store := &fakeStore{}

	existing := time.Date(2021, 5, 10, 0, 0, 0, 0, time.UTC)
	record := &models.Report{
		ID:           uuid.New(),
		Slug:         "job-server-report",
		JobServerURL: srv.URL + "/output/published/report.html",
		LastUpdated:  &existing,
	}

	_, err := NewReport(client, record, store).GetHTML(ctx)
	require.NoError(t, err)
	assert.Empty(t, store.lastUpdated)
}

func TestReportIsPublished(t *testing.T) {
	record := &models.Report{JobServerURL: "https://jobs.example.org/output/published/report.html"}
	assert.True(t, (&Report{record: record}).IsPublished())

	record = &models.Report{JobServerURL: "https://jobs.example.org/output/123/report.html"}
	assert.False(t, (&Report{record: record}).IsPublished())
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		hosts   []string
		wantErr bool
	}{
		{"https ok", "https://jobs.example.org/output/report.html", nil, false},
		{"http ok", "http://jobs.example.org/output/report.html", nil, false},
		{"bad scheme", "ftp://jobs.example.org/output", nil, true},
		{"relative", "/output/report.html", nil, true},
		{"allowed host", "https://jobs.example.org/x", []string{"jobs.example.org"}, false},
		{"host case-insensitive", "https://JOBS.EXAMPLE.ORG/x", []string{"jobs.example.org"}, false},
		{"disallowed host", "https://evil.example.org/x", []string{"jobs.example.org"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url, tt.hosts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
