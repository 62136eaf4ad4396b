package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func githubReport() *Report {
	return &Report{
		Slug:               "vaccine-coverage",
		Title:              "Vaccine coverage",
		Repo:               "output-explorer-test-repo",
		Branch:             "master",
		ReportHTMLFilePath: "test-outputs/report.html",
	}
}

func TestValidateBackendExclusivity(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Report)
		wantErr bool
	}{
		{"github fields only", func(r *Report) {}, false},
		{"job server url only", func(r *Report) {
			r.Repo, r.Branch, r.ReportHTMLFilePath = "", "", ""
			r.JobServerURL = "https://jobs.opensafely.org/output/published/report.html"
		}, false},
		{"both backends", func(r *Report) {
			r.JobServerURL = "https://jobs.opensafely.org/output/published/report.html"
		}, true},
		{"neither backend", func(r *Report) {
			r.Repo, r.Branch, r.ReportHTMLFilePath = "", "", ""
		}, true},
		{"missing branch", func(r *Report) { r.Branch = "" }, true},
		{"missing file path", func(r *Report) { r.ReportHTMLFilePath = "" }, true},
		{"missing repo", func(r *Report) { r.Repo = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := githubReport()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUsesGitHub(t *testing.T) {
	r := githubReport()
	assert.True(t, r.UsesGitHub())

	r.JobServerURL = "https://jobs.opensafely.org/output/published/report.html"
	assert.False(t, r.UsesGitHub())
}

func TestResolutionAndPresentationPartition(t *testing.T) {
	before := githubReport()
	after := githubReport()

	// Display-only edits leave the resolution identity untouched
	after.Title = "New title"
	after.IsDraft = true
	assert.Equal(t, before.Resolution(), after.Resolution())
	assert.NotEqual(t, before.Presentation(), after.Presentation())

	// Repointing the content changes the resolution identity only
	after = githubReport()
	after.Branch = "main"
	assert.NotEqual(t, before.Resolution(), after.Resolution())
	assert.Equal(t, before.Presentation(), after.Presentation())

	// Derivative fields belong to neither partition
	after = githubReport()
	after.UseGitBlob = true
	now := time.Now()
	after.LastUpdated = &now
	assert.Equal(t, before.Resolution(), after.Resolution())
	assert.Equal(t, before.Presentation(), after.Presentation())
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	stamp := time.Date(2021, 5, 10, 2, 30, 0, 0, loc)

	got := DateOnly(stamp)
	// 02:30 at UTC+5 is the previous day in UTC
	assert.Equal(t, time.Date(2021, 5, 9, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, got, DateOnly(got))
}
