package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/opensafely-core/reports/common/models"
)

// editableFields is the patchable view of a report. Derivative fields
// (cache token, blob latch, last updated) are absent so a patch can never
// touch them.
type editableFields struct {
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	ContactEmail       string    `json:"contact_email"`
	PublicationDate    time.Time `json:"publication_date"`
	IsDraft            bool      `json:"is_draft"`
	Repo               string    `json:"repo"`
	Branch             string    `json:"branch"`
	ReportHTMLFilePath string    `json:"report_html_file_path"`
	JobServerURL       string    `json:"job_server_url"`
}

// Patch applies a JSON Patch (RFC 6902) to a report's editable fields and
// saves the result through the cache invalidation policy
func (s *ReportService) Patch(ctx context.Context, slug string, patchJSON []byte) (*models.Report, error) {
	old, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(editableView(old))
	if err != nil {
		return nil, fmt.Errorf("marshal report fields: %w", err)
	}

	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}

	modified, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch operations: %w", err)
	}

	var edited editableFields
	if err := json.Unmarshal(modified, &edited); err != nil {
		return nil, fmt.Errorf("unmarshal patched fields: %w", err)
	}

	updated := *old
	applyEditable(&updated, edited)

	if err := s.saveExisting(ctx, old, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

func editableView(r *models.Report) editableFields {
	return editableFields{
		Slug:               r.Slug,
		Title:              r.Title,
		Description:        r.Description,
		Category:           r.Category,
		ContactEmail:       r.ContactEmail,
		PublicationDate:    r.PublicationDate,
		IsDraft:            r.IsDraft,
		Repo:               r.Repo,
		Branch:             r.Branch,
		ReportHTMLFilePath: r.ReportHTMLFilePath,
		JobServerURL:       r.JobServerURL,
	}
}

func applyEditable(r *models.Report, f editableFields) {
	r.Slug = f.Slug
	r.Title = f.Title
	r.Description = f.Description
	r.Category = f.Category
	r.ContactEmail = f.ContactEmail
	r.PublicationDate = f.PublicationDate
	r.IsDraft = f.IsDraft
	r.Repo = f.Repo
	r.Branch = f.Branch
	r.ReportHTMLFilePath = f.ReportHTMLFilePath
	r.JobServerURL = f.JobServerURL
}
