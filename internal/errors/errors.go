// Package errors defines the status-code taxonomy returned by every
// command the dispatcher processes.
package errors

import "fmt"

// Status is the outcome of a single dispatched command.
type Status string

const (
	Ok           Status = "Ok"
	Unrecognized Status = "Unrecognized"
	CircularRef  Status = "CircularRef"
	InvalidCell  Status = "InvalidCell"
	LockedCell   Status = "LockedCell"
)

// SheetError carries a Status plus a human-readable detail message.
type SheetError struct {
	Status  Status
	Message string
}

func (e *SheetError) Error() string {
	if e.Message == "" {
		return string(e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

func New(status Status, format string, args ...interface{}) *SheetError {
	return &SheetError{Status: status, Message: fmt.Sprintf(format, args...)}
}

func NewUnrecognized(format string, args ...interface{}) *SheetError {
	return New(Unrecognized, format, args...)
}

func NewCircularRef(format string, args ...interface{}) *SheetError {
	return New(CircularRef, format, args...)
}

func NewInvalidCell(format string, args ...interface{}) *SheetError {
	return New(InvalidCell, format, args...)
}

func NewLockedCell(format string, args ...interface{}) *SheetError {
	return New(LockedCell, format, args...)
}

// StatusOf extracts the Status from err, defaulting to Ok for a nil error
// and Unrecognized for any error that isn't a *SheetError (defensive:
// every internal error path is expected to produce a *SheetError).
func StatusOf(err error) Status {
	if err == nil {
		return Ok
	}
	if se, ok := err.(*SheetError); ok {
		return se.Status
	}
	return Unrecognized
}
