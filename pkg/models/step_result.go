package models

// StepProgress is a single progress report emitted while a step runs.
// Percent is monotonically non-decreasing within one invocation.
type StepProgress struct {
	Percent int    `json:"progress"`
	Message string `json:"message"`
}

// ProgressFunc receives progress reports during step execution.
type ProgressFunc func(StepProgress)

// StepResult is the outcome of one step invocation. It is folded into the
// session's collected parameters on success and discarded afterwards.
type StepResult struct {
	StepID   string         `json:"step_id"`
	StepName string         `json:"step_name"`
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`

	// Missing and Invalid itemize parameter validation failures so callers
	// can surface a precise follow-up prompt without re-querying the oracle.
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

// ValidationFailed reports whether the result represents a parameter
// validation failure rather than a tool failure.
func (r StepResult) ValidationFailed() bool {
	return !r.Success && (len(r.Missing) > 0 || len(r.Invalid) > 0)
}
