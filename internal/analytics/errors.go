package analytics

import "errors"

var (
	// ErrNilCollection indicates a required record collection was not provided.
	ErrNilCollection = errors.New("analytics: nil collection")
	// ErrUnknownWindow indicates an unsupported window kind.
	ErrUnknownWindow = errors.New("analytics: unknown window")
	// ErrInvalidRange indicates a range whose start lies after its end.
	ErrInvalidRange = errors.New("analytics: invalid range")
	// ErrInvalidLookAhead indicates a negative look-ahead.
	ErrInvalidLookAhead = errors.New("analytics: negative look-ahead")
)
