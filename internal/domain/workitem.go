package domain

import "fmt"

// WorkItem is one (ticket, date) pair carried on the work queue. It is
// self-contained: a worker needs no secondary lookup to perform the
// upstream call.
type WorkItem struct {
	JobID       string `json:"jobId"`
	ItemID      string `json:"itemId"`
	Username    string `json:"username"`
	Token       string `json:"token"`
	Instance    string `json:"jiraInstance"`
	TicketID    string `json:"ticketId"`
	Date        string `json:"date"`
	TimeSpend   string `json:"timeSpend"`
	Description string `json:"description"`
	TypeOfWork  string `json:"typeOfWork"`
}

// ItemID builds the stable dedup key for one expanded work item. The
// sequence number keeps the key unique when a request legitimately
// repeats a date or ticket, so the key identifies the enqueued message
// rather than the (ticket, date) value.
func ItemID(ticketID, date string, seq int) string {
	return fmt.Sprintf("%s#%s#%d", ticketID, date, seq)
}
