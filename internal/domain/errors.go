package domain

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step an ingestion error came from.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageWrite   Stage = "write"
)

var (
	// ErrNotFound is returned when the remote resource does not exist (HTTP 404).
	ErrNotFound = errors.New("roll call not found")
	// ErrUnavailable covers any other non-OK status, transport failure, or timeout.
	ErrUnavailable = errors.New("roll call unavailable")

	ErrMalformedDocument = errors.New("malformed roll call document")
	ErrMissingMetadata   = errors.New("vote-metadata node missing")
	ErrMissingLegislator = errors.New("legislator node missing")
)

// IngestError ties a failure to the roll call and stage it happened in.
type IngestError struct {
	Stage    Stage
	RollCall int
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("roll call %d: %s error: %v", e.RollCall, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps a fetch failure.
func NewFetchError(rollCall int, err error) *IngestError {
	return &IngestError{Stage: StageFetch, RollCall: rollCall, Err: err}
}

// NewExtractError wraps an extraction failure.
func NewExtractError(rollCall int, err error) *IngestError {
	return &IngestError{Stage: StageExtract, RollCall: rollCall, Err: err}
}

// NewWriteError wraps a persistence failure.
func NewWriteError(rollCall int, err error) *IngestError {
	return &IngestError{Stage: StageWrite, RollCall: rollCall, Err: err}
}

// StageOf returns the stage recorded in err, or "" when err is not an IngestError.
func StageOf(err error) Stage {
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		return ingestErr.Stage
	}
	return ""
}
