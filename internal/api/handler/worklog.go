package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pawel/toolgate/internal/worklog"
)

// WorklogHandler proxies single worklog submissions straight to Jira,
// without going through the job queue.
type WorklogHandler struct {
	client *worklog.Client
}

func NewWorklogHandler(client *worklog.Client) *WorklogHandler {
	return &WorklogHandler{client: client}
}

type worklogRequest struct {
	Username     string `json:"username"`
	Date         string `json:"date"`
	TicketID     string `json:"ticketId"`
	TimeSpend    string `json:"timeSpend"`
	Description  string `json:"description"`
	TypeOfWork   string `json:"typeOfWork"`
	JiraInstance string `json:"jiraInstance"`
}

// Submit handles POST /api/v1/worklogs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *WorklogHandler) Submit(c *gin.Context) {
	var req worklogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid request body"})
		return
	}

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid Authorization header: must provide a Bearer token"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Date == "" || req.TicketID == "" ||
		req.TimeSpend == "" || req.Description == "" || req.TypeOfWork == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid worklog: username, date, ticketId, timeSpend, description and typeOfWork are required"})
		return
	}
	if !h.client.ValidInstance(req.JiraInstance) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid jiraInstance"})
		return
	}

	err := h.client.Submit(c.Request.Context(), token, worklog.Entry{
		Username:    req.Username,
		Instance:    req.JiraInstance,
		TicketID:    req.TicketID,
		Date:        req.Date,
		TimeSpend:   req.TimeSpend,
		Description: req.Description,
		TypeOfWork:  req.TypeOfWork,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Worklog submission failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Worklog submitted"})
}
