package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ProjectKey is the context key for project identifiers.
	ProjectKey contextKey = "project"

	// StreamKey is the context key for telemetry stream names.
	StreamKey contextKey = "stream"

	// DimensionKey is the context key for dimension values.
	DimensionKey contextKey = "dimension"

	// EnvironmentKey is the context key for deployment environments.
	EnvironmentKey contextKey = "environment"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithProject adds a project identifier to the context.
func WithProject(ctx context.Context, project string) context.Context {
	return context.WithValue(ctx, ProjectKey, project)
}

// GetProject retrieves the project identifier from the context.
func GetProject(ctx context.Context) string {
	if project, ok := ctx.Value(ProjectKey).(string); ok {
		return project
	}
	return ""
}

// WithStream adds a stream name to the context.
func WithStream(ctx context.Context, stream string) context.Context {
	return context.WithValue(ctx, StreamKey, stream)
}

// GetStream retrieves the stream name from the context.
func GetStream(ctx context.Context) string {
	if stream, ok := ctx.Value(StreamKey).(string); ok {
		return stream
	}
	return ""
}

// WithDimension adds a dimension value to the context.
func WithDimension(ctx context.Context, dimension string) context.Context {
	return context.WithValue(ctx, DimensionKey, dimension)
}

// GetDimension retrieves the dimension value from the context.
func GetDimension(ctx context.Context) string {
	if dimension, ok := ctx.Value(DimensionKey).(string); ok {
		return dimension
	}
	return ""
}

// WithEnvironment adds a deployment environment to the context.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, EnvironmentKey, environment)
}

// GetEnvironment retrieves the deployment environment from the context.
func GetEnvironment(ctx context.Context) string {
	if environment, ok := ctx.Value(EnvironmentKey).(string); ok {
		return environment
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if project := GetProject(ctx); project != "" {
		fields = append(fields, "project", project)
	}
	if stream := GetStream(ctx); stream != "" {
		fields = append(fields, "stream", stream)
	}
	if dimension := GetDimension(ctx); dimension != "" {
		fields = append(fields, "dimension", dimension)
	}
	if environment := GetEnvironment(ctx); environment != "" {
		fields = append(fields, "environment", environment)
	}

	return fields
}
