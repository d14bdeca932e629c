package registry

import "errors"

var (
	ErrDuplicateTool     = errors.New("tool already registered")
	ErrToolNotRegistered = errors.New("tool not registered")
)

// IsNotRegistered checks if an error means no tool is registered under the
// requested id.
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrToolNotRegistered)
}
