package models

import (
	"strings"
	"time"
)

// SessionState is the per-session position in the conversational state machine.
type SessionState string

const (
	StateIdle                 SessionState = "idle"                  // No active workflow
	StateCollecting           SessionState = "collecting"            // Workflow chosen, parameters incomplete
	StateExecuting            SessionState = "executing"             // Step validated and dispatched
	StateAwaitingContinuation SessionState = "awaiting_continuation" // Step complete, not last
)

// SessionStatus represents the lifecycle state of a session in the store.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEvicted SessionStatus = "evicted"
)

const (
	maxHistoryMessages  = 50
	trimHistoryMessages = 40
)

// Message is one entry of the bounded conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the in-memory state of one ongoing conversation. Sessions are
// owned exclusively by the session store; turn processing mutates a session
// only while holding its per-session lock.
type Session struct {
	ID                  string              `json:"id"`
	CreatedAt           time.Time           `json:"created_at"`
	LastActivity        time.Time           `json:"last_activity"`
	State               SessionState        `json:"state"`
	Status              SessionStatus       `json:"status"`
	ActiveWorkflow      *WorkflowDefinition `json:"active_workflow,omitempty"`
	CurrentStepIndex    int                 `json:"current_step_index"`
	CollectedParameters map[string]any      `json:"collected_parameters"`
	MessageHistory      []Message           `json:"message_history"`
}

// NewSession creates a fresh idle session.
func NewSession(id string) *Session {
	now := time.Now()

	return &Session{
		ID:                  id,
		CreatedAt:           now,
		LastActivity:        now,
		State:               StateIdle,
		Status:              SessionStatusActive,
		CurrentStepIndex:    0,
		CollectedParameters: make(map[string]any),
		MessageHistory:      make([]Message, 0),
	}
}

// AdoptWorkflow binds a workflow to the session and moves it to collecting.
func (s *Session) AdoptWorkflow(workflow *WorkflowDefinition) {
	s.ActiveWorkflow = workflow
	s.CurrentStepIndex = 0
	s.State = StateCollecting
}

// ResetWorkflow returns the session to idle, discarding all workflow state.
func (s *Session) ResetWorkflow() {
	s.ActiveWorkflow = nil
	s.CurrentStepIndex = 0
	s.CollectedParameters = make(map[string]any)
	s.State = StateIdle
}

// CurrentStep returns the step the session is positioned on.
func (s *Session) CurrentStep() (StepDefinition, bool) {
	if s.ActiveWorkflow == nil {
		return StepDefinition{}, false
	}

	return s.ActiveWorkflow.Step(s.CurrentStepIndex)
}

// MergeParameters folds newly extracted parameters into the collected set.
// The merge is monotonic: a key already holding a non-empty value is never
// replaced by an empty one, and empty values never create new keys.
func (s *Session) MergeParameters(params map[string]any) {
	if s.CollectedParameters == nil {
		s.CollectedParameters = make(map[string]any)
	}

	for key, value := range params {
		if isEmptyValue(value) {
			continue
		}

		s.CollectedParameters[key] = value
	}
}

// AppendMessage records a conversation turn, trimming the oldest entries once
// the history cap is exceeded.
func (s *Session) AppendMessage(role, content string) {
	s.MessageHistory = append(s.MessageHistory, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})

	if len(s.MessageHistory) > maxHistoryMessages {
		s.MessageHistory = s.MessageHistory[len(s.MessageHistory)-trimHistoryMessages:]
	}
}

// HasParameter reports whether a non-empty value has been collected for name.
func (s *Session) HasParameter(name string) bool {
	value, ok := s.CollectedParameters[name]

	return ok && !isEmptyValue(value)
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
