package dashboard

import "errors"

var (
	// ErrActorRequired indicates a scoped request without an actor id.
	ErrActorRequired = errors.New("dashboard: actor id required")
	// ErrActorNotFound indicates the requested actor is not part of the snapshot.
	ErrActorNotFound = errors.New("dashboard: actor not found")
	// ErrUnknownScope indicates an unsupported scope.
	ErrUnknownScope = errors.New("dashboard: unknown scope")
	// ErrSourceNotConfigured indicates the service has no record source.
	ErrSourceNotConfigured = errors.New("dashboard: record source not configured")
)
