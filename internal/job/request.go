package job

import (
	"fmt"
	"strings"
)

// Ticket is one line item of a bulk submission.
type Ticket struct {
	TicketID    string `json:"ticketId"`
	TimeSpend   string `json:"timeSpend"`
	Description string `json:"description"`
	TypeOfWork  string `json:"typeOfWork"`
}

// SubmitRequest is the bulk timesheet submission body. Dates is a
// comma-separated list; date format validation is owned by the upstream.
type SubmitRequest struct {
	Username     string   `json:"username"`
	Dates        string   `json:"dates"`
	Tickets      []Ticket `json:"tickets"`
	JiraInstance string   `json:"jiraInstance"`
}

// DateList splits the dates field on commas and trims whitespace,
// preserving order.
func (r *SubmitRequest) DateList() []string {
	if strings.TrimSpace(r.Dates) == "" {
		return nil
	}
	parts := strings.Split(r.Dates, ",")
	dates := make([]string, 0, len(parts))
	for _, p := range parts {
		dates = append(dates, strings.TrimSpace(p))
	}
	return dates
}

// ValidationError is a client input error; it maps to a 400 response
// carrying Message verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
