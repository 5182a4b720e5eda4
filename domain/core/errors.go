package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrNoDataFound   = errors.New("no data files found")
	ErrEmptyTable    = errors.New("empty table")
	ErrMissingColumn = errors.New("required column missing")
	ErrUnknownSource = errors.New("unknown source dataset")

	// Pipeline lifecycle errors
	ErrNotReady    = errors.New("snapshot not ready")
	ErrRunInFlight = errors.New("pipeline run already in flight")

	// Geo errors
	ErrBoundaryNotFound = errors.New("boundary file not found")
	ErrNoBoundaries     = errors.New("boundary collection has no features")
)

// NewMissingColumnError reports a missing column with its table context.
func NewMissingColumnError(table, column string) error {
	return fmt.Errorf("%w: %s in %s", ErrMissingColumn, column, table)
}

// NewNoDataFoundError reports an empty source directory.
func NewNoDataFoundError(source, dir string) error {
	return fmt.Errorf("%w: source %s in %s", ErrNoDataFound, source, dir)
}

// IsInputError reports whether err is a configuration/input error that must
// abort a pipeline run rather than degrade it.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoDataFound) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrUnknownSource)
}
