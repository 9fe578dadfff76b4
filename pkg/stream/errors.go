package stream

import "errors"

// Errors surfaced by the stream coordination layer. The HTTP boundary maps
// these onto status codes so the UI can tell "retry later" apart from
// "ignore, duplicate" and "generation failed".
var (
	// ErrDuplicateRequest means a request bearing the same idempotency token
	// is already in flight. The client should drop this attempt.
	ErrDuplicateRequest = errors.New("duplicate request already in flight")

	// ErrStopInProgress means a previous stream did not release its lease
	// within the stop-and-wait bound. The client should back off and retry.
	ErrStopInProgress = errors.New("previous stream still shutting down")

	// ErrSessionBusy means another process acquired the stream lease first.
	ErrSessionBusy = errors.New("a generation is already running for this session")

	// ErrEngineFailed wraps an unrecoverable generation engine error,
	// including upstream rate limiting.
	ErrEngineFailed = errors.New("generation engine failed")
)
