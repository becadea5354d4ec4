package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"badgerland/internal/common"
	"badgerland/internal/jobs/background"
	"badgerland/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newJobServer(jobs *MockJobController) *echo.Echo {
	h := NewJobHandlers(jobs, zap.NewNop())
	e := echo.New()
	e.GET("/v1/admin/jobs", h.ListJobs)
	e.POST("/v1/admin/jobs/:name/run", h.RunJob)
	return e
}

func TestRunJob_ReturnsReport(t *testing.T) {
	jobs := new(MockJobController)
	report := models.NewJobReport(models.JobAutoPickups, time.Now())
	report.AddCreated("user-1", "2025-01-17 8:00 AM - 10:00 AM")
	jobs.On("RunNow", mock.Anything, models.JobAutoPickups).Return(report.Finish(time.Now()), nil).Once()

	rec := serve(newJobServer(jobs), newRequest(http.MethodPost, "/v1/admin/jobs/auto-pickups/run", "", uuid.New(), common.RoleAdmin))

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.JobReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.JobAutoPickups, got.Job)
	assert.Equal(t, 1, got.Created)
	jobs.AssertExpectations(t)
}

func TestRunJob_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown", background.ErrUnknownJob, http.StatusNotFound},
		{"busy", background.ErrJobBusy, http.StatusConflict},
		{"failed", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := new(MockJobController)
			jobs.On("RunNow", mock.Anything, "overage-billing").Return(nil, tt.err).Once()

			rec := serve(newJobServer(jobs), newRequest(http.MethodPost, "/v1/admin/jobs/overage-billing/run", "", uuid.New(), common.RoleAdmin))

			assert.Equal(t, tt.code, rec.Code)
			jobs.AssertExpectations(t)
		})
	}
}

func TestRunJob_FailureCarriesPartialReport(t *testing.T) {
	jobs := new(MockJobController)
	report := models.NewJobReport(models.JobOverageBilling, time.Now()).Finish(time.Now())
	jobs.On("RunNow", mock.Anything, models.JobOverageBilling).Return(report, assert.AnError).Once()

	rec := serve(newJobServer(jobs), newRequest(http.MethodPost, "/v1/admin/jobs/overage-billing/run", "", uuid.New(), common.RoleAdmin))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Report *models.JobReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "JOB_FAILED", body.Error.Code)
	require.NotNil(t, body.Report)
	assert.Equal(t, models.JobOverageBilling, body.Report.Job)
}

func TestListJobs(t *testing.T) {
	jobs := new(MockJobController)
	next := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	jobs.On("GetJobStatus").Return([]background.JobStatus{
		{Name: models.JobAutoPickups},
		{Name: models.JobOverageBilling, NextRun: &next},
	}).Once()

	rec := serve(newJobServer(jobs), newRequest(http.MethodGet, "/v1/admin/jobs", "", uuid.New(), common.RoleAdmin))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs []background.JobStatus `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 2)
	assert.Nil(t, body.Jobs[0].NextRun)
	assert.True(t, next.Equal(*body.Jobs[1].NextRun))
}
