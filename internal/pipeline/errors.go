package pipeline

import "errors"

var (
	// ErrUnknownKind is returned for a scan kind with no template.
	ErrUnknownKind = errors.New("unknown scan kind")

	// ErrOutOfScope is returned when a target fails the scope check.
	ErrOutOfScope = errors.New("target out of scope")

	// ErrInvalidTarget is returned for an empty or malformed target.
	ErrInvalidTarget = errors.New("invalid target")
)
