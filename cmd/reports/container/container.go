package container

import (
	"github.com/opensafely-core/reports/cmd/reports/handlers"
	"github.com/opensafely-core/reports/cmd/reports/repository"
	"github.com/opensafely-core/reports/cmd/reports/service"
	"github.com/opensafely-core/reports/common/bootstrap"
	"github.com/opensafely-core/reports/common/github"
	"github.com/opensafely-core/reports/common/jobserver"
)

// Container holds all initialized clients, repositories, services and
// handlers (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Backend clients
	GitHub    *github.Client
	JobServer *jobserver.Client

	// Repositories
	ReportRepo *repository.ReportRepository

	// Services
	ReportService *service.ReportService

	// Handlers
	ReportHandler *handlers.ReportHandler
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	githubClient, err := github.NewClient(components.Config, components.Cache, components.Logger)
	if err != nil {
		return nil, err
	}
	jobServerClient := jobserver.NewClient(components.Config, components.Cache, components.Logger)

	reportRepo := repository.NewReportRepository(components.DB)

	reportService := service.NewReportService(
		reportRepo,
		githubClient,
		jobServerClient,
		components.Config.JobServer.AllowedHosts,
		components.Logger,
	)

	return &Container{
		Components:    components,
		GitHub:        githubClient,
		JobServer:     jobServerClient,
		ReportRepo:    reportRepo,
		ReportService: reportService,
		ReportHandler: handlers.NewReportHandler(reportService, components.Logger),
	}, nil
}
