package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensafely-core/reports/cmd/reports/middleware"
	"github.com/opensafely-core/reports/cmd/reports/repository"
	"github.com/opensafely-core/reports/cmd/reports/service"
	"github.com/opensafely-core/reports/common/logger"
	"github.com/opensafely-core/reports/common/models"
)

// ReportHandler handles report viewing and management requests
type ReportHandler struct {
	service *service.ReportService
	log     *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		log:     log,
	}
}

// RenderReport serves a report page with the fetched, sanitized notebook
// HTML embedded.
// GET /reports/:slug
//
// The page is served with an ETag derived from the report's cache token, so
// downstream caches revalidate cheaply and are busted whenever the token
// rotates. A force-update query parameter rotates the token, clears the
// upstream response cache and redirects back to the plain URL.
func (h *ReportHandler) RenderReport(c echo.Context) error {
	slug := c.Param("slug")

	if _, forced := c.QueryParams()["force-update"]; forced {
		if _, err := h.service.ForceUpdate(c.Request().Context(), slug); err != nil {
			return h.renderError(c, err)
		}
		h.log.Info("cache token refreshed and requests cache cleared; redirecting", "report", slug)
		return c.Redirect(http.StatusFound, c.Request().URL.Path)
	}

	rendered, err := h.service.Render(c.Request().Context(), slug, middleware.IsAdmin(c))
	if err != nil {
		return h.renderError(c, err)
	}

	etag := `"` + rendered.Report.CacheToken.String() + `"`
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	c.Response().Header().Set("ETag", etag)

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return writeReportPage(c.Response(), rendered)
}

// ListReports lists report records
// GET /api/v1/reports
func (h *ReportHandler) ListReports(c echo.Context) error {
	reports, err := h.service.List(c.Request().Context(), middleware.IsAdmin(c))
	if err != nil {
		return h.jsonError(c, err)
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"reports": reports,
	})
}

// GetReport retrieves one report record
// GET /api/v1/reports/:slug
func (h *ReportHandler) GetReport(c echo.Context) error {
	report, err := h.service.Get(c.Request().Context(), c.Param("slug"), middleware.IsAdmin(c))
	if err != nil {
		return h.jsonError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// CreateReport validates and stores a new report. Validation fetches the
// remote file, so creation fails with a descriptive message when the file
// cannot be found.
// POST /api/v1/reports
func (h *ReportHandler) CreateReport(c echo.Context) error {
	var report models.Report
	if err := c.Bind(&report); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	if err := h.service.Create(c.Request().Context(), &report); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, report)
}

// PatchReport applies a JSON Patch to a report's editable fields
// PATCH /api/v1/reports/:slug
func (h *ReportHandler) PatchReport(c echo.Context) error {
	patchJSON, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "failed to read request body",
		})
	}

	report, err := h.service.Patch(c.Request().Context(), c.Param("slug"), patchJSON)
	if err != nil {
		if isNotFound(err) {
			return h.jsonError(c, err)
		}
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, report)
}

// DeleteReport removes a report record
// DELETE /api/v1/reports/:slug
func (h *ReportHandler) DeleteReport(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("slug")); err != nil {
		return h.jsonError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RefreshReport is the administrative force-update: rotate the cache token
// and clear the upstream response cache
// POST /api/v1/reports/:slug/refresh
func (h *ReportHandler) RefreshReport(c echo.Context) error {
	report, err := h.service.ForceUpdate(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return h.jsonError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *ReportHandler) jsonError(c echo.Context, err error) error {
	if isNotFound(err) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "report not found",
		})
	}
	h.log.Error("request failed", "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": "internal error",
	})
}

func (h *ReportHandler) renderError(c echo.Context, err error) error {
	if isNotFound(err) {
		return c.HTML(http.StatusNotFound, "<h1>Report not found</h1>")
	}
	// A fetch failure on an already-validated record means the remote object
	// was removed after validation: inconsistent external state, surfaced as
	// a server error
	h.log.Error("report render failed", "error", err)
	return c.HTML(http.StatusInternalServerError, "<h1>Something went wrong fetching this report</h1>")
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, service.ErrNotFound)
}
