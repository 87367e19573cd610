package domain

import "errors"

var (
	// ErrSourceUnavailable is returned when no question set could be loaded and no fallback exists.
	ErrSourceUnavailable = errors.New("question source unavailable")
	// ErrUnauthorized is returned when a privileged call carries a missing, unknown or expired token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPersistence wraps storage write failures.
	ErrPersistence = errors.New("persistence error")
	// ErrMalformedInput indicates an unparsable or invalid request body.
	ErrMalformedInput = errors.New("malformed input")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned by admin and student login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrQuestionNotFound indicates a question index outside the attempt.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidOption indicates a label the question does not offer.
	ErrInvalidOption = errors.New("option not found")
	// ErrAttemptClosed is returned when mutating an attempt that is no longer active.
	ErrAttemptClosed = errors.New("attempt is not active")
)
