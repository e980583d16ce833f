package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InvalidInputError rejects empty or malformed user input before any
// gateway call is made.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// AlreadyAnalyzedError signals an idempotency violation on the structural
// analyzer. Callers treat it as success.
type AlreadyAnalyzedError struct {
	EntryID uuid.UUID
}

func (e *AlreadyAnalyzedError) Error() string {
	return fmt.Sprintf("entry %s already structure-analyzed", e.EntryID)
}

func IsAlreadyAnalyzed(err error) bool {
	var ae *AlreadyAnalyzedError
	return errors.As(err, &ae)
}

// ErrNotSuitable is a valid distillation outcome, not a failure: the
// sanitized content carries no generalizable value.
var ErrNotSuitable = errors.New("content not suitable for insight")

// TranscriptionError wraps a speech-to-text failure so the voice entry
// handler can map it to its own status code.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return "transcription failed: " + e.Err.Error()
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

func IsTranscriptionError(err error) bool {
	var te *TranscriptionError
	return errors.As(err, &te)
}
