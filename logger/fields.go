package logger

import (
	"context"

	"go.uber.org/zap"
)

// Field names shared by the server, the manager and the worker so their
// log lines can be joined on job_id.
const (
	FieldJobID      = "job_id"
	FieldRequestID  = "request_id"
	FieldComponent  = "component"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldCount      = "count"

	// worker processes
	FieldPID    = "pid"
	FieldBinary = "binary"
	FieldStage  = "stage"

	// search pipeline
	FieldTerm       = "term"
	FieldSite       = "site"
	FieldSupplierID = "supplier_id"
	FieldDepth      = "depth"

	FieldSymbol = "symbol"
)

type scopeKey struct{}

// scope holds the identifiers a request or job carries through its context
type scope struct {
	jobID     string
	requestID string
	component string
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, edit func(*scope)) context.Context {
	s := scopeFrom(ctx)
	edit(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithJobID tags ctx with the job being processed
func WithJobID(ctx context.Context, jobID string) context.Context {
	return withScope(ctx, func(s *scope) { s.jobID = jobID })
}

// WithRequestID tags ctx with an HTTP request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withScope(ctx, func(s *scope) { s.requestID = requestID })
}

func WithComponent(ctx context.Context, component string) context.Context {
	return withScope(ctx, func(s *scope) { s.component = component })
}

// FieldsFromContext returns the context's identifiers as Infow-style
// key/value pairs, skipping empty ones.
func FieldsFromContext(ctx context.Context) []interface{} {
	s := scopeFrom(ctx)
	var fields []interface{}
	for _, kv := range [][2]string{
		{FieldJobID, s.jobID},
		{FieldRequestID, s.requestID},
		{FieldComponent, s.component},
	} {
		if kv[1] != "" {
			fields = append(fields, kv[0], kv[1])
		}
	}
	return fields
}

// ComponentLogger returns the global logger named for one subsystem,
// e.g. "pulse.async" or "worker".
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
