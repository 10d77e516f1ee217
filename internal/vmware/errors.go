package vmware

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers branch on. Startup
// failures (configuration, connection) abort the process; everything else
// is reported back to the tool caller as a structured failure.
var (
	// ErrConfiguration indicates a named inventory object from the
	// configuration could not be resolved. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection indicates the vCenter/ESXi endpoint could not be
	// reached or rejected the session. Fatal at startup.
	ErrConnection = errors.New("connection error")

	// ErrNotFound indicates a named inventory entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRemoteOperation wraps a failure reported by the platform for a
	// submitted task. The platform's own error detail is preserved.
	ErrRemoteOperation = errors.New("remote operation failed")
)

// NotFoundError reports that no inventory object of the given kind and
// name exists.
func NotFoundError(kind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
}

// ConfigurationError reports that an explicitly configured object could
// not be resolved.
func ConfigurationError(kind, name string) error {
	return fmt.Errorf("%w: %s %q not found", ErrConfiguration, kind, name)
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
