package catalog

import "errors"

var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrDuplicateWorkflow = errors.New("duplicate workflow id")
)

// IsNotFound checks if an error means the requested workflow does not exist.
// Callers must treat this as "needs clarification", never as a fatal error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}
