// Package events defines event types and structures emitted during
// conversational turns and workflow execution.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/parleyhq/parley/pkg/models"
)

type EventType string

// Topic is the in-process bus topic carrying lifecycle events.
const Topic = "parley.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Turn response events, streamed back to the conversation transport.
	WelcomeEvent           EventType = "welcome"
	ChatResponseEvent      EventType = "chat_response"
	NeedClarificationEvent EventType = "need_clarification"
	WorkflowStartedEvent   EventType = "workflow_started"
	NeedMoreInfoEvent      EventType = "need_more_info"
	StepExecutingEvent     EventType = "step_executing"
	StepProgressEvent      EventType = "step_progress"
	StepCompletedEvent     EventType = "step_completed"
	StepFailedEvent        EventType = "step_failed"
	WorkflowCompletedEvent EventType = "workflow_completed"
	TurnErrorEvent         EventType = "error"
	PongEvent              EventType = "pong"

	// Lifecycle events, published on the internal event bus.
	SessionCreatedEvent             EventType = "session.created"
	SessionDeletedEvent             EventType = "session.deleted"
	SessionEvictedEvent             EventType = "session.evicted"
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBase(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

type Welcome struct {
	BaseEvent

	Message           string   `json:"message"`
	AvailableCommands []string `json:"available_commands,omitempty"`
}

func (e Welcome) GetType() EventType { return WelcomeEvent }

type ChatResponse struct {
	BaseEvent

	Message string `json:"message"`
}

func (e ChatResponse) GetType() EventType { return ChatResponseEvent }

type NeedClarification struct {
	BaseEvent

	Message string `json:"message"`
}

func (e NeedClarification) GetType() EventType { return NeedClarificationEvent }

type WorkflowStarted struct {
	BaseEvent

	WorkflowID   string                 `json:"workflow_id"`
	WorkflowName string                 `json:"workflow"`
	Message      string                 `json:"message"`
	NextStep     *models.StepDefinition `json:"next_step,omitempty"`
}

func (e WorkflowStarted) GetType() EventType { return WorkflowStartedEvent }

type NeedMoreInfo struct {
	BaseEvent

	Message        string   `json:"message"`
	Step           string   `json:"step,omitempty"`
	RequiredParams []string `json:"required_params,omitempty"`
	MissingParams  []string `json:"missing_params,omitempty"`
}

func (e NeedMoreInfo) GetType() EventType { return NeedMoreInfoEvent }

type StepExecuting struct {
	BaseEvent

	Step     string `json:"step"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

func (e StepExecuting) GetType() EventType { return StepExecutingEvent }

type StepProgress struct {
	BaseEvent

	Step     string `json:"step"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

func (e StepProgress) GetType() EventType { return StepProgressEvent }

type StepCompleted struct {
	BaseEvent

	CompletedStep string         `json:"completed_step"`
	Result        map[string]any `json:"result,omitempty"`
	NextStep      string         `json:"next_step,omitempty"`
	Message       string         `json:"message"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

type StepFailed struct {
	BaseEvent

	Step           string `json:"step"`
	Error          string `json:"error"`
	Message        string `json:"message"`
	RetryAvailable bool   `json:"retry_available"`
}

func (e StepFailed) GetType() EventType { return StepFailedEvent }

type WorkflowCompleted struct {
	BaseEvent

	Message string         `json:"message"`
	Result  map[string]any `json:"result,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

func (e WorkflowCompleted) GetType() EventType { return WorkflowCompletedEvent }

type TurnError struct {
	BaseEvent

	Message string `json:"message"`
	Code    string `json:"error_code,omitempty"`
}

func (e TurnError) GetType() EventType { return TurnErrorEvent }

type Pong struct {
	BaseEvent
}

func (e Pong) GetType() EventType { return PongEvent }

type SessionCreated struct {
	BaseEvent
}

func (e SessionCreated) GetType() EventType { return SessionCreatedEvent }

type SessionDeleted struct {
	BaseEvent
}

func (e SessionDeleted) GetType() EventType { return SessionDeletedEvent }

type SessionEvicted struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e SessionEvicted) GetType() EventType { return SessionEvictedEvent }

type WorkflowExecutionStarted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	StepID     string `json:"step_id"`
}

func (e WorkflowExecutionStarted) GetType() EventType { return WorkflowExecutionStartedEvent }

type WorkflowExecutionCompleted struct {
	BaseEvent

	WorkflowID string         `json:"workflow_id"`
	Result     map[string]any `json:"result,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

func (e WorkflowExecutionCompleted) GetType() EventType { return WorkflowExecutionCompletedEvent }

type WorkflowExecutionFailed struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	StepID     string `json:"step_id"`
	Error      string `json:"error"`
}

func (e WorkflowExecutionFailed) GetType() EventType { return WorkflowExecutionFailedEvent }
