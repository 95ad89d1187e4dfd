// Package errdefs defines the error taxonomy shared by attacks, training,
// search and checkpointing. Callers test with errors.Is.
package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrInvalidHyperparameter marks an out-of-domain training or attack parameter.
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")
	// ErrInvalidConfiguration marks a malformed stopping criterion, space or config file.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrEmptySpace marks a hyperparameter space with an empty candidate list.
	ErrEmptySpace = errors.New("empty hyperparameter space")
	// ErrCheckpointCorrupt marks an unreadable or schema-mismatched checkpoint.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
	// ErrCheckpointNotFound marks a checkpoint that does not exist.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrDataExhausted marks a dataset shorter than requested.
	ErrDataExhausted = errors.New("data exhausted")
	// ErrDiverged marks a training run whose loss became NaN or infinite.
	ErrDiverged = errors.New("training diverged")
)

// ParamError describes a rejected hyperparameter value.
type ParamError struct {
	Name   string
	Value  any
	Reason string
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrInvalidHyperparameter, e.Name, e.Value, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidHyperparameter) hold.
func (e *ParamError) Unwrap() error {
	return ErrInvalidHyperparameter
}

// InvalidParam returns a *ParamError.
func InvalidParam(name string, value any, reason string) error {
	return &ParamError{Name: name, Value: value, Reason: reason}
}
