// Package models defines the core domain models for conversational workflow orchestration.
package models

// ParamRule constrains the shape of a single step parameter.
type ParamRule struct {
	Pattern   string `json:"pattern,omitempty"`
	MinLength int    `json:"min_length,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
	Message   string `json:"message,omitempty"`
}

// StepDefinition describes one unit of work bound to exactly one remote tool.
type StepDefinition struct {
	ID             string               `json:"id"              validate:"required"`
	Name           string               `json:"name"            validate:"required"`
	Description    string               `json:"description"`
	Tool           string               `json:"tool"            validate:"required"`
	RequiredParams []string             `json:"required_params"`
	OptionalParams []string             `json:"optional_params,omitempty"`
	Validation     map[string]ParamRule `json:"validation,omitempty"`
}

// WorkflowDefinition is an immutable, named, ordered sequence of steps.
// Definitions are loaded once at startup and never mutated afterwards.
type WorkflowDefinition struct {
	ID               string           `json:"id"             validate:"required"`
	Name             string           `json:"name"           validate:"required"`
	Description      string           `json:"description"`
	Category         string           `json:"category"`
	EstimatedSeconds int              `json:"estimated_time,omitempty"`
	Steps            []StepDefinition `json:"steps"          validate:"required,min=1"`
}

// Step returns the step at index, or false when the index is out of range.
func (w *WorkflowDefinition) Step(index int) (StepDefinition, bool) {
	if index < 0 || index >= len(w.Steps) {
		return StepDefinition{}, false
	}

	return w.Steps[index], true
}
