package handler

import (
	"errors"

	"github.com/castos/studio/internal/cache"
	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/middleware"
	"github.com/castos/studio/internal/model"
	"github.com/castos/studio/internal/projection"
	"github.com/castos/studio/internal/service"
	"github.com/castos/studio/pkg/response"
	"github.com/gofiber/fiber/v2"
)

type ProjectHandler struct {
	api        *client.CastOSClient
	submission *service.SubmissionService
	projects   *service.ProjectService
	reports    *service.ReportService
}

func NewProjectHandler(api *client.CastOSClient, submission *service.SubmissionService, projects *service.ProjectService, reports *service.ReportService) *ProjectHandler {
	return &ProjectHandler{
		api:        api,
		submission: submission,
		projects:   projects,
		reports:    reports,
	}
}

// backend returns a client authenticated as the caller
func (h *ProjectHandler) backend(c *fiber.Ctx) *client.CastOSClient {
	return h.api.OnBehalfOf(middleware.RequestTokens(c))
}

// Run handles POST /api/projects/run
// @Summary      Start casting optimization
// @Description  Validate a project brief and submit it to the optimization backend
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        request body model.SubmitRequest true "Project brief"
// @Success      202 {object} model.SubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects/run [post]
func (h *ProjectHandler) Run(c *fiber.Ctx) error {
	var req model.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.submission.Submit(c.Context(), h.backend(c), &req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return response.ValidationError(c, "Validation failed", verr.Fields)
		}
		return upstreamError(c, err)
	}

	return response.Accepted(c, result)
}

// List handles GET /api/projects
// @Summary      List projects
// @Description  List the caller's projects with dashboard summaries
// @Tags         Projects
// @Produce      json
// @Success      200 {object} model.ProjectListResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects [get]
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	result, err := h.projects.List(c.Context(), h.backend(c), middleware.GetOwner(c))
	if err != nil {
		return upstreamError(c, err)
	}
	if result.Stale {
		c.Set("X-Snapshot-Stale", "true")
	}
	return response.OK(c, result)
}

// Get handles GET /api/projects/:id
// @Summary      Get project
// @Description  Get the raw project record including its optimization result
// @Tags         Projects
// @Produce      json
// @Param        id path string true "Project ID"
// @Success      200 {object} model.Project
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects/{id} [get]
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	id := model.ProjectID(c.Params("id"))
	if id == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	p, stale, err := h.projects.Get(c.Context(), h.backend(c), middleware.GetOwner(c), id)
	if err != nil {
		return upstreamError(c, err)
	}
	if stale {
		c.Set("X-Snapshot-Stale", "true")
	}
	return response.OK(c, p)
}

// View handles GET /api/projects/:id/view
// @Summary      Get result view
// @Description  Budget, chart series and cast manifest for a completed project
// @Tags         Projects
// @Produce      json
// @Param        id path string true "Project ID"
// @Success      200 {object} projection.View
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects/{id}/view [get]
func (h *ProjectHandler) View(c *fiber.Ctx) error {
	id := model.ProjectID(c.Params("id"))
	if id == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	view, err := h.projects.View(c.Context(), h.backend(c), middleware.GetOwner(c), id)
	if err != nil {
		return projectStateError(c, err)
	}
	return response.OK(c, view)
}

// Delete handles DELETE /api/projects/:id
// @Summary      Delete project
// @Tags         Projects
// @Param        id path string true "Project ID"
// @Success      204
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects/{id} [delete]
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	id := model.ProjectID(c.Params("id"))
	if id == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	if err := h.projects.Delete(c.Context(), h.backend(c), middleware.GetOwner(c), id); err != nil {
		return upstreamError(c, err)
	}
	return response.NoContent(c)
}

// Export handles POST /api/projects/:id/export
// @Summary      Export cast report
// @Description  Queue a downloadable report for a completed project
// @Tags         Reports
// @Produce      json
// @Param        id path string true "Project ID"
// @Success      202 {object} model.ReportStartResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects/{id}/export [post]
func (h *ProjectHandler) Export(c *fiber.Ctx) error {
	id := model.ProjectID(c.Params("id"))
	if id == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	owner := middleware.GetOwner(c)
	p, _, err := h.projects.Get(c.Context(), h.backend(c), owner, id)
	if err != nil {
		return upstreamError(c, err)
	}

	result, err := h.reports.StartExport(c.Context(), owner, p)
	if err != nil {
		if errors.Is(err, projection.ErrNotCompleted) || errors.Is(err, service.ErrProjectFailed) {
			return projectStateError(c, err)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, result)
}

// ReportStatus handles GET /api/reports/:jobId
// @Summary      Get report export status
// @Tags         Reports
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.ReportJob
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/reports/{jobId} [get]
func (h *ProjectHandler) ReportStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.reports.GetStatus(c.Context(), middleware.GetOwner(c), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) || errors.Is(err, cache.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, job)
}

func projectStateError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrProjectFailed):
		return response.Conflict(c, response.CodeJobFailed, "Optimization failed for this project")
	case errors.Is(err, projection.ErrNotCompleted):
		return response.Conflict(c, response.CodeConflict, "Optimization has not completed yet")
	default:
		return upstreamError(c, err)
	}
}

// upstreamError maps a backend failure to the gateway's error envelope
func upstreamError(c *fiber.Ctx, err error) error {
	apiErr, ok := client.AsAPIError(err)
	if !ok {
		return response.ServiceError(c, err.Error())
	}

	switch {
	case apiErr.IsTransport():
		return response.UpstreamError(c, "Casting service unreachable")
	case apiErr.Status == fiber.StatusUnauthorized:
		return response.Unauthorized(c, apiErr.Message())
	case apiErr.Status == fiber.StatusForbidden:
		return response.Forbidden(c, apiErr.Message())
	case apiErr.IsNotFound():
		return response.NotFound(c, apiErr.Message())
	case apiErr.Kind == client.KindStatus && apiErr.Status < 500:
		return response.ValidationError(c, apiErr.Message(), nil)
	default:
		return response.UpstreamError(c, apiErr.Message())
	}
}
