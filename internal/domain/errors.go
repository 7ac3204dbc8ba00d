package domain

import "errors"

var (
	// ErrInvalidInput signals a user-correctable request error (empty question).
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited signals that admission control denied the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotReady signals that the index or a model capability is unavailable.
	ErrNotReady = errors.New("not ready")
	// ErrBackendUnavailable signals an unreachable embedding or chat provider.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrDimMismatch signals a vector dimensionality mismatch between the
	// index artifact and the configured embedding provider.
	ErrDimMismatch = errors.New("vector dimension mismatch")
	// ErrBuildFailure signals an aborted index build. A prior artifact, if
	// any, is left untouched.
	ErrBuildFailure = errors.New("build failure")
)
