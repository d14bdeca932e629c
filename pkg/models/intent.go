package models

// Action is the canonical next-step decision synthesized from oracle output.
type Action string

const (
	ActionStart        Action = "start"
	ActionContinue     Action = "continue"
	ActionExecute      Action = "execute"
	ActionNeedMoreInfo Action = "need_more_info"
	ActionChat         Action = "chat"
	ActionClarify      Action = "clarify"
)

// IntentRecord is the per-turn interpretation of user input. Records are
// produced fresh each turn and never persisted; only their merged effect on
// the session's collected parameters survives the turn.
type IntentRecord struct {
	Action            Action         `json:"action"`
	WorkflowType      string         `json:"workflow_type,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	MissingParameters []string       `json:"missing_parameters,omitempty"`
	Message           string         `json:"message,omitempty"`
	Reasoning         string         `json:"reasoning,omitempty"`

	// Extra carries oracle fields outside the canonical vocabulary. Unknown
	// keys pass through untouched rather than being dropped.
	Extra map[string]any `json:"extra,omitempty"`
}
