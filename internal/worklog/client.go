package worklog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pawel/toolgate/internal/config"
)

// Entry is one worklog to submit upstream. TimeSpend is in hours, as
// entered by the user; the wire payload carries seconds.
type Entry struct {
	Username    string
	Instance    string
	TicketID    string
	Date        string
	TimeSpend   string
	Description string
	TypeOfWork  string
}

// tempoPayload is the Tempo worklog wire format.
type tempoPayload struct {
	Description   string `json:"description"`
	EndDate       string `json:"endDate"`
	IssueKey      string `json:"issueKey"`
	Period        bool   `json:"period"`
	RemainingTime int    `json:"remainingTime"`
	StartDate     string `json:"startDate"`
	Time          string `json:"time"`
	TimeSpend     int    `json:"timeSpend"`
	TypeOfWork    string `json:"typeOfWork"`
	Username      string `json:"username"`
}

// Client submits worklogs to one of the configured Jira instances.
// Instance base URLs are configuration, not code; 429 and 5xx responses
// are retried by the HTTP layer, other 4xx are fatal.
type Client struct {
	client    *resty.Client
	instances map[string]config.JiraInstanceConfig
}

// NewClient creates a Jira worklog client.
// Parameters:
//   - cfg: Jira configuration including the instance map and retry policy.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *config.JiraConfig) *Client {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(cfg.RetryCount)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &Client{
		client:    client,
		instances: cfg.Instances,
	}
}

// ValidInstance reports whether name is a configured Jira instance.
func (c *Client) ValidInstance(name string) bool {
	_, ok := c.instances[name]
	return ok
}

// Submit posts one worklog entry, converting hours to seconds and
// stamping the payload with the current wall-clock time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - token: bearer credential forwarded to the instance.
//   - e: worklog entry to submit.
// Returns:
//   - error: non-nil if the upstream rejects the entry after retries.
func (c *Client) Submit(ctx context.Context, token string, e Entry) error {
	instance, ok := c.instances[e.Instance]
	if !ok {
		return fmt.Errorf("unknown jira instance %q", e.Instance)
	}

	seconds, err := hoursToSeconds(e.TimeSpend)
	if err != nil {
		return fmt.Errorf("invalid timeSpend %q: %w", e.TimeSpend, err)
	}

	payload := tempoPayload{
		Description:   e.Description,
		EndDate:       e.Date,
		IssueKey:      e.TicketID,
		Period:        false,
		RemainingTime: 0,
		StartDate:     e.Date,
		Time:          time.Now().Format("15:04:05"),
		TimeSpend:     seconds,
		TypeOfWork:    e.TypeOfWork,
		Username:      e.Username,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		Post(instance.URL)
	if err != nil {
		return fmt.Errorf("posting worklog to %s: %w", e.Instance, err)
	}
	if resp.IsError() {
		return fmt.Errorf("worklog rejected by %s: %s: %s", e.Instance, resp.Status(), truncate(resp.String(), 200))
	}
	return nil
}

// hoursToSeconds converts a decimal hour count to whole seconds.
func hoursToSeconds(hours string) (int, error) {
	h, err := strconv.ParseFloat(hours, 64)
	if err != nil {
		return 0, err
	}
	if h < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	return int(h * 3600), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
