package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldSessionID is the search session ID
	FieldSessionID = "session_id"

	// FieldTerm is the search term a log line refers to
	FieldTerm = "term"

	// FieldItemID is the GIF item ID
	FieldItemID = "item_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Metric fields, attached per log line for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
