package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/opensafely-core/reports/cmd/reports/container"
	"github.com/opensafely-core/reports/cmd/reports/repository"
	"github.com/opensafely-core/reports/cmd/reports/routes"
	"github.com/opensafely-core/reports/common/bootstrap"
	"github.com/opensafely-core/reports/common/db"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, requests cache)
	components, err := bootstrap.Setup(ctx, "reports",
		bootstrap.WithDBInitHook(applySchema(ctx)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap reports: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	routes.RegisterReportRoutes(e, serviceContainer)

	startServer(ctx, e, components)
}

// applySchema ensures the reports table exists before the service starts
func applySchema(ctx context.Context) func(*db.DB) error {
	return func(database *db.DB) error {
		return repository.NewReportRepository(database).EnsureSchema(ctx)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.DB.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "reports",
		})
	})
}

// startServer runs the Echo server until interrupted, then shuts down
// gracefully
func startServer(ctx context.Context, e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port

	go func() {
		components.Logger.Info("starting reports service", "port", port)
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			components.Logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	components.Logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		components.Logger.Error("graceful shutdown failed", "error", err)
	}
}
