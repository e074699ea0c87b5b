package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pawel/toolgate/internal/job"
)

// JobsHandler handles bulk timesheet submission and status polling.
type JobsHandler struct {
	admission *job.Admission
	status    *job.StatusReader
}

// NewJobsHandler creates a new jobs handler.
// Parameters:
//   - admission: bulk submission service.
//   - status: job status reader.
// Returns:
//   - *JobsHandler: initialized handler.
func NewJobsHandler(admission *job.Admission, status *job.StatusReader) *JobsHandler {
	return &JobsHandler{admission: admission, status: status}
}

// Submit handles POST /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobsHandler) Submit(c *gin.Context) {
	// Body validation precedes credential validation by contract.
	var req job.SubmitRequest
	reqPtr := &req
	if err := c.ShouldBindJSON(&req); err != nil {
		reqPtr = nil
	}

	result, err := h.admission.Submit(c.Request.Context(), bearerToken(c), reqPtr)
	if err != nil {
		var verr *job.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Job submission failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"jobId":   result.JobID,
		"total":   result.Total,
		"message": fmt.Sprintf("Job accepted, %d worklogs queued", result.Total),
	})
}

// Status handles GET /api/v1/jobs/status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobsHandler) Status(c *gin.Context) {
	jobID := c.Query("jobId")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'jobId' is required"})
		return
	}

	snap, err := h.status.Get(c.Request.Context(), jobID)
	if errors.Is(err, job.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found: " + jobID})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Status lookup failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// bearerToken extracts the credential from the Authorization header,
// stripping the Bearer prefix. Empty means absent.
func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}
