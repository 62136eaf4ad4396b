package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Report is a published report record. Its HTML lives in exactly one of two
// remote backends: a file in a GitHub repo (Repo + Branch +
// ReportHTMLFilePath) or a job-server output URL (JobServerURL).
type Report struct {
	ID              uuid.UUID `json:"id"`
	Slug            string    `json:"slug"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	ContactEmail    string    `json:"contact_email"`
	PublicationDate time.Time `json:"publication_date"`
	IsDraft         bool      `json:"is_draft"`

	Repo               string `json:"repo"`
	Branch             string `json:"branch"`
	ReportHTMLFilePath string `json:"report_html_file_path"`
	JobServerURL       string `json:"job_server_url"`

	// UseGitBlob remembers that the contents endpoint failed for this report
	// (file too large), so fetches must go straight to the git blob path.
	// It is set once and never cleared.
	UseGitBlob bool `json:"use_git_blob"`

	// LastUpdated is resolved from the remote source, never user-edited
	LastUpdated *time.Time `json:"last_updated"`

	// CacheToken keys downstream (browser/CDN) caching of the rendered page
	CacheToken uuid.UUID `json:"cache_token"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsesGitHub reports whether this report's file is hosted on GitHub rather
// than the job server
func (r *Report) UsesGitHub() bool {
	return r.JobServerURL == ""
}

// Validate enforces the backend mutual-exclusivity invariant: a report is
// hosted on GitHub or on the job server, never both and never neither
func (r *Report) Validate() error {
	github := r.Repo != "" || r.Branch != "" || r.ReportHTMLFilePath != ""
	jobServer := r.JobServerURL != ""

	if github && jobServer {
		return fmt.Errorf("report must use either github or job server fields, not both")
	}
	if jobServer {
		return nil
	}
	if r.Repo == "" || r.Branch == "" || r.ReportHTMLFilePath == "" {
		return fmt.Errorf("github-hosted reports require repo, branch and report_html_file_path")
	}
	return nil
}

// ResolutionFields are the fields whose change implies the remote content
// identity itself may differ
type ResolutionFields struct {
	Repo               string
	Branch             string
	ReportHTMLFilePath string
	JobServerURL       string
}

// PresentationFields are the user-editable fields that affect only how
// already-resolved content is displayed. Derivative fields (cache token,
// blob flag, last updated, timestamps) are deliberately absent.
type PresentationFields struct {
	Slug            string
	Title           string
	Description     string
	Category        string
	ContactEmail    string
	PublicationDate time.Time
	IsDraft         bool
}

// Resolution returns the resolution-affecting field values for change detection
func (r *Report) Resolution() ResolutionFields {
	return ResolutionFields{
		Repo:               r.Repo,
		Branch:             r.Branch,
		ReportHTMLFilePath: r.ReportHTMLFilePath,
		JobServerURL:       r.JobServerURL,
	}
}

// Presentation returns the presentation-affecting field values for change detection
func (r *Report) Presentation() PresentationFields {
	return PresentationFields{
		Slug:            r.Slug,
		Title:           r.Title,
		Description:     r.Description,
		Category:        r.Category,
		ContactEmail:    r.ContactEmail,
		PublicationDate: r.PublicationDate,
		IsDraft:         r.IsDraft,
	}
}

// DateOnly truncates t to a UTC calendar date. Remote last-modified values
// are stored and compared at day precision.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
