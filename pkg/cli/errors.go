package cli

import (
	"errors"
	"fmt"

	"devguard-hq/devguard/pkg/metering"
)

// Process exit codes. Scripts key off these, so the mapping is part of
// the command surface.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitConfig   = 2
	ExitNotFound = 3
)

// ConfigError reports a configuration problem that prevented a command
// from starting. Field may be empty when the whole config failed to load.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps a failure from an executing command with the
// command's name for the error line on stderr.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps an error to the process exit code. Config and validation
// problems exit 2, lookups of unknown ids exit 3, everything else 1.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	var valErr *metering.ValidationError
	if errors.As(err, &valErr) {
		return ExitConfig
	}
	var nfErr *metering.NotFoundError
	if errors.As(err, &nfErr) {
		return ExitNotFound
	}
	return ExitFailure
}
