package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pawel/toolgate/internal/cache"
	"github.com/pawel/toolgate/internal/chat"
	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/job"
	"github.com/pawel/toolgate/internal/queue"
	"github.com/pawel/toolgate/internal/shortener"
	"github.com/pawel/toolgate/internal/store"
	"github.com/pawel/toolgate/internal/worklog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(jiraURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Mode: "test",
			CORS: config.CORSConfig{AllowAllOrigins: true},
		},
		Jira: config.JiraConfig{
			Instances: map[string]config.JiraInstanceConfig{
				"jira3":  {URL: jiraURL},
				"jira9":  {URL: jiraURL},
				"jiradc": {URL: jiraURL},
			},
			Timeout: 5 * time.Second,
		},
		Chat: config.ChatConfig{
			BaseURL: jiraURL,
			Model:   "gpt-4o-mini",
			Timeout: 5 * time.Second,
		},
		Shortener: config.ShortenerConfig{CodeLength: 8, BaseURL: "http://localhost:8080/r"},
		Jobs: config.JobsConfig{
			Retention: time.Hour,
			Workers:   4,
		},
	}
}

// newTestRouter builds the router plus an in-process worker consuming the
// memory queue, mirroring the standalone wiring in cmd/api.
func newTestRouter(t *testing.T, upstream http.HandlerFunc) http.Handler {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	cfg := newTestConfig(srv.URL)

	st := store.NewMemory()
	q := queue.NewMemory(queue.MemoryOptions{
		BatchSize:         10,
		VisibilityTimeout: time.Second,
		MaxAttempts:       2,
		PollInterval:      5 * time.Millisecond,
	})

	worklogClient := worklog.NewClient(&cfg.Jira)
	admission := job.NewAdmission(st, q, &cfg.Jira, &cfg.Jobs)
	status := job.NewStatusReader(st, cache.Noop{}, 0)
	processor := job.NewProcessor(st, worklogClient, 0)
	reconciler := job.NewReconciler(st)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = q.Consume(ctx, processor.HandleBatch) }()
	go func() { _ = q.Dead().Consume(ctx, reconciler.HandleBatch) }()

	chatService := chat.NewService(&cfg.Chat, "sk-test")
	shortenerService := shortener.NewService(st, &cfg.Shortener)

	return SetupRouter(admission, status, worklogClient, chatService, shortenerService, cfg)
}

func doJSON(t *testing.T, router http.Handler, method, path, auth, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var fields map[string]json.RawMessage
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fields), "body: %s", w.Body.String())
	}
	return w, fields
}

func strField(t *testing.T, fields map[string]json.RawMessage, key string) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(fields[key], &s), "field %s", key)
	return s
}

func pollStatus(t *testing.T, router http.Handler, jobID string, done func(snap job.Snapshot) bool) job.Snapshot {
	t.Helper()
	var snap job.Snapshot
	require.Eventually(t, func() bool {
		w, _ := doJSON(t, router, http.MethodGet, "/api/v1/jobs/status?jobId="+jobID, "", "")
		if w.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		return done(snap)
	}, 3*time.Second, 10*time.Millisecond)
	return snap
}

const submitBody = `{
	"username": "alice",
	"dates": "1/Jan/26,2/Jan/26",
	"tickets": [
		{"ticketId": "AB-1", "timeSpend": "2", "description": "dev work", "typeOfWork": "Development"}
	],
	"jiraInstance": "jiradc"
}`

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w, _ := doJSON(t, router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SubmitJob_CompletesThroughWorker(t *testing.T) {
	var upstreamCalls atomic.Int32
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		assert.Equal(t, "Bearer jira-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})

	w, fields := doJSON(t, router, http.MethodPost, "/api/v1/jobs", "Bearer jira-token", submitBody)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	jobID := strField(t, fields, "jobId")
	assert.NotEmpty(t, jobID)
	assert.JSONEq(t, `2`, string(fields["total"]))
	assert.Equal(t, "Job accepted, 2 worklogs queued", strField(t, fields, "message"))

	snap := pollStatus(t, router, jobID, func(s job.Snapshot) bool { return s.Status.Terminal() })
	assert.Equal(t, "completed", string(snap.Status))
	assert.Equal(t, 2, snap.Processed)
	assert.Equal(t, 0, snap.Failed)
	assert.Equal(t, 100, snap.Progress)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, int32(2), upstreamCalls.Load())
}

func TestRouter_SubmitJob_AllItemsRejectedUpstream(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "worklog rejected", http.StatusUnprocessableEntity)
	})

	w, fields := doJSON(t, router, http.MethodPost, "/api/v1/jobs", "Bearer jira-token", submitBody)
	require.Equal(t, http.StatusCreated, w.Code)

	jobID := strField(t, fields, "jobId")
	snap := pollStatus(t, router, jobID, func(s job.Snapshot) bool { return s.Status.Terminal() })
	assert.Equal(t, "failed", string(snap.Status))
	assert.Equal(t, 0, snap.Processed)
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, 100, snap.Progress)
	assert.Len(t, snap.Errors, 2)
}

func TestRouter_SubmitJob_ValidationFailures(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name    string
		auth    string
		body    string
		message string
	}{
		{
			name:    "malformed body",
			auth:    "Bearer token",
			body:    "{not json",
			message: "Missing or invalid request body",
		},
		{
			name:    "no bearer token",
			auth:    "",
			body:    submitBody,
			message: "Missing or invalid Authorization header: must provide a Bearer token",
		},
		{
			name:    "basic auth is not bearer",
			auth:    "Basic dXNlcjpwYXNz",
			body:    submitBody,
			message: "Missing or invalid Authorization header: must provide a Bearer token",
		},
		{
			name:    "no tickets",
			auth:    "Bearer token",
			body:    `{"username": "alice", "dates": "1/Jan/26", "jiraInstance": "jiradc"}`,
			message: "Missing or invalid tickets: must provide a tickets array",
		},
		{
			name:    "unknown instance",
			auth:    "Bearer token",
			body:    `{"username": "alice", "dates": "1/Jan/26", "tickets": [{"ticketId": "AB-1", "timeSpend": "1", "description": "x", "typeOfWork": "Dev"}], "jiraInstance": "jira5"}`,
			message: "Missing or invalid jiraInstance: must be one of jira3, jira9, jiradc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, fields := doJSON(t, router, http.MethodPost, "/api/v1/jobs", tt.auth, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, strField(t, fields, "error"))
		})
	}
}

func TestRouter_JobStatus_NotFound(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w, _ := doJSON(t, router, http.MethodGet, "/api/v1/jobs/status?jobId=does-not-exist", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/jobs/status", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "jobId query parameter is required")
}

func TestRouter_Links_CreateRedirectStats(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w, fields := doJSON(t, router, http.MethodPost, "/api/v1/links", "", `{"url": "https://example.com/page"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	code := strField(t, fields, "code")
	assert.Equal(t, "http://localhost:8080/r/"+code, strField(t, fields, "shortUrl"))

	w, _ = doJSON(t, router, http.MethodGet, "/r/"+code, "", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/page", w.Header().Get("Location"))

	require.Eventually(t, func() bool {
		w, statsFields := doJSON(t, router, http.MethodGet, "/api/v1/links/"+code+"/stats", "", "")
		if w.Code != http.StatusOK {
			return false
		}
		var clicks int64
		require.NoError(t, json.Unmarshal(statsFields["clicks"], &clicks))
		return clicks == 1
	}, time.Second, 10*time.Millisecond)

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/links", "", `{"url": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/r/missing99", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_WorklogProxy(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "AB-1", payload["issueKey"])
		assert.Equal(t, float64(3600), payload["timeSpend"])
		w.WriteHeader(http.StatusOK)
	})

	body := `{
		"username": "alice",
		"ticketId": "AB-1",
		"date": "1/Jan/26",
		"timeSpend": "1",
		"description": "dev work",
		"typeOfWork": "Development",
		"jiraInstance": "jiradc"
	}`
	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/worklogs", "Bearer jira-token", body)
	assert.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
}

func TestRouter_ChatCompletions(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-1", "model": "gpt-4o-mini", "choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}]}`))
	})

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/chat/completions", "", `{"messages": [{"role": "user", "content": "hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Contains(t, w.Body.String(), `"hello"`)

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/chat/completions", "", `{"messages": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
