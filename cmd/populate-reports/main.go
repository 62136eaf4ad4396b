// Command populate-reports seeds the database with a sample report if it is
// not already there. For development use only: creation runs the full
// validation fetch, so it needs network access to GitHub.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opensafely-core/reports/cmd/reports/container"
	"github.com/opensafely-core/reports/cmd/reports/repository"
	"github.com/opensafely-core/reports/common/bootstrap"
	"github.com/opensafely-core/reports/common/db"
	"github.com/opensafely-core/reports/common/models"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "populate-reports",
		bootstrap.WithoutTelemetry(),
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.NewReportRepository(database).EnsureSchema(ctx)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	c, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		os.Exit(1)
	}

	sample := &models.Report{
		Slug:               "vaccine-coverage",
		Title:              "Vaccine Coverage",
		Category:           "Reports",
		Repo:               "output-explorer-test-repo",
		Branch:             "master",
		ReportHTMLFilePath: "test-outputs/vaccine-coverage-new.html",
		PublicationDate:    time.Date(2021, 5, 10, 0, 0, 0, 0, time.UTC),
	}

	if err := ensureReport(ctx, c, sample); err != nil {
		components.Logger.Error("failed to seed report", "report", sample.Slug, "error", err)
		os.Exit(1)
	}
}

func ensureReport(ctx context.Context, c *container.Container, report *models.Report) error {
	if _, err := c.ReportRepo.GetBySlug(ctx, report.Slug); err == nil {
		c.Components.Logger.Info("report already exists", "report", report.Slug)
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	// Create runs validation, which fetches the remote file and populates
	// the derived fields as a side effect
	if err := c.ReportService.Create(ctx, report); err != nil {
		return err
	}

	c.Components.Logger.Info("created report", "report", report.Slug)
	return nil
}
