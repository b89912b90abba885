package logging

import "context"

// Fields carries structured identifiers that TraceHandler injects into every
// log line written through a context derived from WithFields.
type Fields struct {
	JobID     *string
	JobStepID *string
	Role      *string // "cto" or "coder"
	Component string
}

type fieldsKey struct{}

// WithFields merges the given fields onto any already attached to ctx and
// returns a new context carrying the result.
func WithFields(ctx context.Context, fields Fields) context.Context {
	existing, _ := ctx.Value(fieldsKey{}).(Fields)
	return context.WithValue(ctx, fieldsKey{}, mergeFields(existing, fields))
}

// GetFields returns the fields attached to ctx, if any.
func GetFields(ctx context.Context) (Fields, bool) {
	fields, ok := ctx.Value(fieldsKey{}).(Fields)
	return fields, ok
}

func mergeFields(base, override Fields) Fields {
	merged := base
	if override.JobID != nil {
		merged.JobID = override.JobID
	}
	if override.JobStepID != nil {
		merged.JobStepID = override.JobStepID
	}
	if override.Role != nil {
		merged.Role = override.Role
	}
	if override.Component != "" {
		merged.Component = override.Component
	}
	return merged
}

// Ptr returns a pointer to v. Convenience helper for building Fields literals.
func Ptr[T any](v T) *T {
	return &v
}

func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
