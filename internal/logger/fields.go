package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID is the sync run ID
	FieldRunID = "run_id"

	// FieldSyncType is the sync type (e.g. full)
	FieldSyncType = "sync_type"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldEmployeeID is the remote employee id being resolved
	FieldEmployeeID = "employee_id"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldPage is the remote page number being processed
	FieldPage = "page"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
