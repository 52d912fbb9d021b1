package engine

import (
	"errors"
	"fmt"
)

// IngestError reports an event the Engine refused to queue.
//
// The accumulator never fails; rejection only happens at the process
// boundary, where malformed input is reported back to the sender.
type IngestError struct {
	// Code identifies the error category.
	Code IngestErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the seq of the offending event, when it had one.
	Seq int64

	// Index is the position of the event in the submitted batch.
	Index int
}

// IngestErrorCode categorizes ingest errors.
type IngestErrorCode string

const (
	// ErrCodeInvalidEvent indicates an event failed envelope validation.
	ErrCodeInvalidEvent IngestErrorCode = "INVALID_EVENT"

	// ErrCodeStopped indicates the engine no longer accepts events.
	ErrCodeStopped IngestErrorCode = "ENGINE_STOPPED"
)

// Error implements the error interface.
func (e *IngestError) Error() string {
	if e.Seq != 0 {
		return fmt.Sprintf("%s: %s (index=%d, seq=%d)", e.Code, e.Message, e.Index, e.Seq)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidEvent reports whether err is an invalid-event rejection.
// Uses errors.As to handle wrapped errors.
func IsInvalidEvent(err error) bool {
	var ie *IngestError
	return errors.As(err, &ie) && ie.Code == ErrCodeInvalidEvent
}

// IsStopped reports whether err was caused by a stopped engine.
func IsStopped(err error) bool {
	var ie *IngestError
	return errors.As(err, &ie) && ie.Code == ErrCodeStopped
}
