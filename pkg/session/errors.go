package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// IsNotFound checks if an error means the session does not exist or has been
// evicted. Callers report this as a per-turn error asking the client to
// re-establish a session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
