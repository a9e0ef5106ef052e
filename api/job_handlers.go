package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetJobHandler handles requests to get job status by ID
func (api *API) GetJobHandler(c *gin.Context) {
	jobID := c.Param("jobId")

	job, err := api.engine.GetJob(jobID)
	if err != nil {
		SendServiceError(c, ErrorCodeInternalError, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobsHandler lists tracked jobs, optionally filtered with ?status=
func (api *API) ListJobsHandler(c *gin.Context) {
	result := &ValidationResult{Valid: true}
	status := ValidateJobStatus(c.Query("status"), result)
	if result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	jobs := api.engine.ListJobs(status)
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}
