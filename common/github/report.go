package github

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/opensafely-core/reports/common/models"
)

// RecordStore persists the fetch-owned fields of a report outside the normal
// save cycle
type RecordStore interface {
	SetUseGitBlob(ctx context.Context, id uuid.UUID, useGitBlob bool) error
	SetLastUpdated(ctx context.Context, id uuid.UUID, lastUpdated time.Time) error
}

// Report fetches the HTML file behind one GitHub-hosted report record.
//
// An instance lives for one request: the first GetHTML call runs the full
// resolution and memoizes the result, later calls return it without I/O.
type Report struct {
	client *Client
	record *models.Report
	store  RecordStore

	repo *Repo

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

// Repo resolves the record's repo, checking it exists. Memoized.
func (r *Report) Repo(ctx context.Context) (*Repo, error) {
	if r.repo == nil {
		repo, err := r.client.GetRepo(ctx, r.record.Repo)
		if err != nil {
			return nil, err
		}
		r.repo = repo
	}
	return r.repo, nil
}

// GetHTML fetches the report's HTML file (an exported notebook) from the
// record's repo and branch.
//
// The use_git_blob latch is checked first: once a record is known to need
// the blob path, the failing contents call is never retried. Otherwise the
// direct path fetch is attempted, falling back to the blob path exactly once
// when the file is too large, latching the record as it goes.
func (r *Report) GetHTML(ctx context.Context) (string, error) {
	if r.fetched {
		return r.html, nil
	}

	repo, err := r.Repo(ctx)
	if err != nil {
		return "", err
	}

	var file *ContentFile
	if r.record.UseGitBlob {
		file, err = r.contentsFromGitBlob(ctx, repo)
	} else {
		file, err = r.pathContents(ctx, repo)
		if errors.Is(err, ErrTooLarge) {
			file, err = r.contentsFromGitBlob(ctx, repo)
			if err == nil {
				// Latch immediately so future requests skip the contents call
				r.record.UseGitBlob = true
				if storeErr := r.store.SetUseGitBlob(ctx, r.record.ID, true); storeErr != nil {
					return "", fmt.Errorf("persist use_git_blob: %w", storeErr)
				}
			}
		}
	}
	if err != nil {
		return "", err
	}

	if err := r.updateLastUpdated(ctx, file.LastUpdated); err != nil {
		return "", err
	}

	html, err := file.DecodedContent()
	if err != nil {
		return "", err
	}

	r.html = html
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

// ClearCache removes all cached API responses for the record's repo
func (r *Report) ClearCache(ctx context.Context) error {
	_, err := r.client.Repo(r.record.Repo).ClearCache(ctx)
	return err
}

// pathContents fetches the report file directly by path
func (r *Report) pathContents(ctx context.Context, repo *Repo) (*ContentFile, error) {
	file, _, err := repo.GetContents(ctx, r.record.ReportHTMLFilePath, r.record.Branch)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s at %s is a directory, not a report file",
			r.record.ReportHTMLFilePath, r.record.Branch)
	}
	return file, nil
}

// contentsFromGitBlob fetches the report file by listing its parent folder
// (which returns shas but no content), finding the entry whose name matches,
// and fetching its git blob. A NotFoundError from the parent listing means
// the branch or folder itself is broken and propagates to the caller.
func (r *Report) contentsFromGitBlob(ctx context.Context, repo *Repo) (*ContentFile, error) {
	parent := path.Dir(r.record.ReportHTMLFilePath)
	name := path.Base(r.record.ReportHTMLFilePath)

	_, entries, err := repo.GetContents(ctx, parent, r.record.Branch)
	if err != nil {
		return nil, err
	}

	var match *ContentFile
	for _, entry := range entries {
		if entry.Name == name {
			match = entry
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s not found in %s", ErrNotFound, name, parent)
	}

	lastUpdated, err := repo.GetLastUpdated(ctx, r.record.ReportHTMLFilePath, r.record.Branch)
	if err != nil {
		return nil, err
	}

	return repo.GetGitBlob(ctx, match.SHA, lastUpdated)
}

// updateLastUpdated persists the resolved date only when it differs from the
// stored value. Comparison is inequality, not newer-than: a remote history
// rewrite may legitimately move the date backwards.
func (r *Report) updateLastUpdated(ctx context.Context, resolved time.Time) error {
	resolved = models.DateOnly(resolved)
	if r.record.LastUpdated != nil && r.record.LastUpdated.Equal(resolved) {
		return nil
	}
	if err := r.store.SetLastUpdated(ctx, r.record.ID, resolved); err != nil {
		return fmt.Errorf("persist last_updated: %w", err)
	}
	r.record.LastUpdated = &resolved
	return nil
}
