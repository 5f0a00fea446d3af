package metering

import "fmt"

// ValidationError reports malformed or incomplete input. It is returned
// before any write happens.
type ValidationError struct {
	Field  string // Field that failed validation
	Reason string // Why validation failed
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Reason)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a reference to an unknown record.
type NotFoundError struct {
	Kind string // Record kind ("budget", "insight", "alert", ...)
	ID   string // Identifier that was looked up
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports an attempt to create a record that already exists,
// such as a duplicate alert for an already-crossed budget band. Callers
// generally treat it as a no-op rather than a failure.
type ConflictError struct {
	Kind string // Record kind
	Key  string // Uniqueness key that collided
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Key)
}

// NewConflictError creates a new ConflictError.
func NewConflictError(kind, key string) *ConflictError {
	return &ConflictError{Kind: kind, Key: key}
}

// InvalidStateError reports a lifecycle transition that is not allowed,
// such as resolving an already-resolved insight.
type InvalidStateError struct {
	Kind string // Record kind
	ID   string // Record identifier
	From string // Current state
	To   string // Requested state
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid %s state transition [id=%s]: %s -> %s", e.Kind, e.ID, e.From, e.To)
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(kind, id, from, to string) *InvalidStateError {
	return &InvalidStateError{Kind: kind, ID: id, From: from, To: to}
}

// StorageError represents an error from a storage backend. It is retryable
// from the caller's perspective; no data is silently lost.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory", ...)
	Operation string // Operation that failed ("append", "query", "replace", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// ExportError represents an error during event export.
type ExportError struct {
	Format string // Export format ("json", "csv")
	Count  int    // Number of records processed before the failure
	Cause  error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, count=%d]: %v", e.Format, e.Count, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, count int, cause error) *ExportError {
	return &ExportError{Format: format, Count: count, Cause: cause}
}

// PartialResult describes sub-ranges an operation could not cover, such as
// aggregation over already-purged events or a purge bounded by incomplete
// aggregation. It is a reported warning, not an error: the operation
// succeeded for everything outside the skipped ranges.
type PartialResult struct {
	Operation string      // Operation that was partially completed
	Skipped   []TimeRange // Sub-ranges that were not covered
	Reason    string      // Why the ranges were skipped
}

// Partial reports whether any sub-range was skipped.
func (p *PartialResult) Partial() bool {
	return p != nil && len(p.Skipped) > 0
}

// String renders the warning for logs.
func (p *PartialResult) String() string {
	if !p.Partial() {
		return fmt.Sprintf("%s: complete", p.Operation)
	}
	return fmt.Sprintf("%s: %d range(s) skipped (%s)", p.Operation, len(p.Skipped), p.Reason)
}
