package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the bulk submission job ID
	FieldJobID = "job_id"

	// FieldItemID is the work item ID within a job
	FieldItemID = "item_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldInstance is the upstream Jira instance name
	FieldInstance = "instance"
)

// Standard metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
