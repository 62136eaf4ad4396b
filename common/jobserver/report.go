package jobserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensafely-core/reports/common/models"
)

// RecordStore persists the fetch-owned last-updated date of a report outside
// the normal save cycle
type RecordStore interface {
	SetLastUpdated(ctx context.Context, id uuid.UUID, lastUpdated time.Time) error
}

// Report fetches the HTML file behind one job-server-hosted report record.
//
// An instance lives for one request: the first GetHTML call fetches and
// memoizes, later calls return the memoized text without I/O.
type Report struct {
	client *Client
	record *models.Report
	store  RecordStore

	html    string
	fetched bool
}

// NewReport creates a fetch wrapper bound to one record
func NewReport(client *Client, record *models.Report, store RecordStore) *Report {
	return &Report{
		client: client,
		record: record,
		store:  store,
	}
}

// FileExists reports whether the record's output URL is reachable
func (r *Report) FileExists(ctx context.Context) (bool, error) {
	return r.client.FileExists(ctx, r.record.JobServerURL)
}

// IsPublished reports whether the record points at a published output
func (r *Report) IsPublished() bool {
	return strings.Contains(r.record.JobServerURL, "published")
}

// GetHTML fetches the report's HTML file from the record's output URL,
// persisting the resolved last-updated date when it changed
func (r *Report) GetHTML(ctx context.Context) (string, error) {
	if r.fetched {
		return r.html, nil
	}

	body, lastModified, err := r.client.GetFile(ctx, r.record.JobServerURL)
	if err != nil {
		return "", err
	}

	resolved := models.DateOnly(lastModified)
	if r.record.LastUpdated == nil || !r.record.LastUpdated.Equal(resolved) {
		if err := r.store.SetLastUpdated(ctx, r.record.ID, resolved); err != nil {
			return "", fmt.Errorf("persist last_updated: %w", err)
		}
		r.record.LastUpdated = &resolved
	}

	r.html = body
	r.fetched = true
	return r.html, nil
}

// LastUpdated returns the record's resolved last-updated date, fetching
// first if needed so the date always reflects the same fetch as the content
func (r *Report) LastUpdated(ctx context.Context) (time.Time, error) {
	if _, err := r.GetHTML(ctx); err != nil {
		return time.Time{}, err
	}
	return *r.record.LastUpdated, nil
}

// ClearCache removes cached responses for the record's output URL
func (r *Report) ClearCache(ctx context.Context) error {
	_, err := r.client.ClearCache(ctx, r.record.JobServerURL)
	return err
}
