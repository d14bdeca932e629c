package web

// CreateSessionRequest optionally pins the id of the session to create.
// Most clients leave it empty and take the generated one.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,min=8,max=128"`
}

// WorkflowSummary is the list-view shape of a catalog entry.
type WorkflowSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Category         string `json:"category,omitempty"`
	EstimatedSeconds int    `json:"estimated_time,omitempty"`
	Steps            int    `json:"steps"`
}
