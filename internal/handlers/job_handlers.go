package handlers

import (
	"context"
	"errors"
	"net/http"

	"badgerland/internal/common"
	"badgerland/internal/jobs/background"
	"badgerland/internal/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// JobController is the admin surface of the background scheduler.
type JobController interface {
	RunNow(ctx context.Context, name string) (*models.JobReport, error)
	GetJobStatus() []background.JobStatus
}

type JobHandlers struct {
	jobs   JobController
	logger *zap.Logger
}

func NewJobHandlers(jobs JobController, logger *zap.Logger) *JobHandlers {
	return &JobHandlers{
		jobs:   jobs,
		logger: logger,
	}
}

// ListJobs handles GET /v1/admin/jobs
func (h *JobHandlers) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs": h.jobs.GetJobStatus(),
	})
}

// RunJob handles POST /v1/admin/jobs/:name/run. A failed run still returns
// its partial report.
func (h *JobHandlers) RunJob(c echo.Context) error {
	name := c.Param("name")

	report, err := h.jobs.RunNow(c.Request().Context(), name)
	switch {
	case errors.Is(err, background.ErrUnknownJob):
		return common.SendNotFoundError(c, "Job "+name)
	case errors.Is(err, background.ErrJobBusy):
		return common.SendConflictError(c, "Job "+name+" is already running")
	case err != nil:
		h.logger.Error("manual job run failed", zap.String("job", name), zap.Error(err))
		resp := common.CreateErrorResponse("JOB_FAILED", err.Error(), nil)
		if report == nil {
			return c.JSON(http.StatusInternalServerError, resp)
		}
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":  resp.Error,
			"report": report,
		})
	}
	return c.JSON(http.StatusOK, report)
}
