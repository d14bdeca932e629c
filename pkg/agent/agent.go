// Package agent drives the per-session conversation state machine. Each
// turn takes the user's text, asks the synthesizer for an intent record, and
// applies the transition for the synthesized action: adopt a workflow, merge
// parameters, prompt for what is still missing, or hand the current step to
// the executor. Execution is only ever triggered by an explicit execute
// action (or a continue once a step has already completed), so a single
// malformed classification can never cause an unintended remote call.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parleyhq/parley/pkg/catalog"
	"github.com/parleyhq/parley/pkg/eventbus"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/executor"
	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/session"
	"github.com/parleyhq/parley/pkg/synthesizer"
)

// RespondFunc delivers one turn event to the transport. Delivery failures
// are the transport's problem; the agent never retries emission.
type RespondFunc func(event eventbus.Event)

// Agent orchestrates turns across all sessions. It is stateless itself;
// everything mutable lives in the session store.
type Agent struct {
	store     *session.Store
	catalog   *catalog.Catalog
	synth     *synthesizer.Synthesizer
	executor  *executor.Executor
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func New(
	store *session.Store,
	cat *catalog.Catalog,
	synth *synthesizer.Synthesizer,
	exec *executor.Executor,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Agent {
	return &Agent{
		store:     store,
		catalog:   cat,
		synth:     synth,
		executor:  exec,
		publisher: publisher,
		logger:    logger.With("module", "agent"),
	}
}

// ProcessMessage runs one conversational turn. It borrows the session for
// the duration of the turn, so a second message for the same session queues
// behind this one instead of racing it.
func (a *Agent) ProcessMessage(ctx context.Context, sessionID, text string, respond RespondFunc) {
	sess, release, err := a.store.Acquire(sessionID)
	if err != nil {
		respond(events.TurnError{
			BaseEvent: events.NewBase(events.TurnErrorEvent, sessionID),
			Message:   "Session not found. Please reconnect to start a new session.",
			Code:      "SESSION_NOT_FOUND",
		})

		return
	}
	defer release()

	sess.AppendMessage("user", text)

	record := a.synth.Analyze(ctx, text, snapshotOf(sess))
	a.logger.InfoContext(ctx, "Turn classified",
		"session_id", sessionID, "action", record.Action, "workflow_type", record.WorkflowType)

	switch record.Action {
	case models.ActionChat:
		a.respondMessage(sess, respond, events.ChatResponse{
			BaseEvent: events.NewBase(events.ChatResponseEvent, sess.ID),
			Message:   orDefault(record.Message, "Hello! How can I help you today?"),
		})
	case models.ActionClarify:
		a.respondMessage(sess, respond, events.NeedClarification{
			BaseEvent: events.NewBase(events.NeedClarificationEvent, sess.ID),
			Message:   orDefault(record.Message, capabilitiesPrompt),
		})
	case models.ActionStart:
		a.handleStart(ctx, sess, record, respond)
	case models.ActionContinue:
		a.handleContinue(ctx, sess, record, respond)
	case models.ActionExecute:
		a.handleExecute(ctx, sess, record, respond)
	case models.ActionNeedMoreInfo:
		a.handleNeedMoreInfo(sess, record, respond)
	default:
		a.handleNeedMoreInfo(sess, record, respond)
	}
}

const capabilitiesPrompt = "I can download douyin content and generate copy, publish videos, or generate copy on its own. What would you like to do?"

func (a *Agent) handleStart(ctx context.Context, sess *models.Session, record models.IntentRecord, respond RespondFunc) {
	if sess.ActiveWorkflow != nil {
		// A workflow is already running; treat the stray start as more
		// information for it instead of discarding collected state.
		a.handleNeedMoreInfo(sess, record, respond)

		return
	}

	workflow, err := a.catalog.Lookup(record.WorkflowType)
	if err != nil {
		a.logger.InfoContext(ctx, "Workflow type did not resolve",
			"session_id", sess.ID, "workflow_type", record.WorkflowType)
		a.respondMessage(sess, respond, events.NeedClarification{
			BaseEvent: events.NewBase(events.NeedClarificationEvent, sess.ID),
			Message:   "Sorry, I did not catch what you need. " + capabilitiesPrompt,
		})

		return
	}

	sess.AdoptWorkflow(workflow)
	sess.CollectedParameters = make(map[string]any)
	sess.MergeParameters(record.Parameters)

	step := workflow.Steps[0]

	a.respondMessage(sess, respond, events.WorkflowStarted{
		BaseEvent:    events.NewBase(events.WorkflowStartedEvent, sess.ID),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Message:      orDefault(record.Message, fmt.Sprintf("Got it, starting %s. First step: %s.", workflow.Name, step.Name)),
		NextStep:     &step,
	})
}

func (a *Agent) handleNeedMoreInfo(sess *models.Session, record models.IntentRecord, respond RespondFunc) {
	if sess.ActiveWorkflow == nil && record.WorkflowType != "" {
		if workflow, err := a.catalog.Lookup(record.WorkflowType); err == nil {
			sess.AdoptWorkflow(workflow)
		}
	}

	sess.MergeParameters(record.Parameters)

	if sess.ActiveWorkflow == nil {
		a.respondMessage(sess, respond, events.NeedClarification{
			BaseEvent: events.NewBase(events.NeedClarificationEvent, sess.ID),
			Message:   orDefault(record.Message, capabilitiesPrompt),
		})

		return
	}

	sess.State = models.StateCollecting
	a.promptForMissing(sess, record.Message, record.MissingParameters, respond)
}

func (a *Agent) handleContinue(ctx context.Context, sess *models.Session, record models.IntentRecord, respond RespondFunc) {
	if sess.ActiveWorkflow == nil {
		a.respondMessage(sess, respond, events.NeedClarification{
			BaseEvent: events.NewBase(events.NeedClarificationEvent, sess.ID),
			Message:   "There is nothing in progress to continue. " + capabilitiesPrompt,
		})

		return
	}

	sess.MergeParameters(record.Parameters)

	// A confirmed continue after a completed step runs the next step; during
	// collection it only updates the prompt.
	if sess.State == models.StateAwaitingContinuation {
		a.executeStep(ctx, sess, respond)

		return
	}

	a.promptForMissing(sess, record.Message, record.MissingParameters, respond)
}

func (a *Agent) handleExecute(ctx context.Context, sess *models.Session, record models.IntentRecord, respond RespondFunc) {
	if sess.ActiveWorkflow == nil {
		workflow, err := a.catalog.Lookup(record.WorkflowType)
		if err != nil {
			a.respondMessage(sess, respond, events.NeedClarification{
				BaseEvent: events.NewBase(events.NeedClarificationEvent, sess.ID),
				Message:   "Sorry, I did not catch what you need. " + capabilitiesPrompt,
			})

			return
		}

		sess.AdoptWorkflow(workflow)
	}

	sess.MergeParameters(record.Parameters)
	a.executeStep(ctx, sess, respond)
}

// executeStep hands the current step to the executor and applies the
// step-completion flow: fold output, advance or finish, or surface a
// retryable failure without touching collected state.
func (a *Agent) executeStep(ctx context.Context, sess *models.Session, respond RespondFunc) {
	step, ok := sess.CurrentStep()
	if !ok {
		a.logger.ErrorContext(ctx, "Session has no current step", "session_id", sess.ID, "state", sess.State)
		sess.ResetWorkflow()
		respond(events.TurnError{
			BaseEvent: events.NewBase(events.TurnErrorEvent, sess.ID),
			Message:   "Something went wrong with the current task. Let's start over.",
			Code:      "INVALID_STEP",
		})

		return
	}

	previousState := sess.State
	sess.State = models.StateExecuting
	startedAt := time.Now()

	respond(events.StepExecuting{
		BaseEvent: events.NewBase(events.StepExecutingEvent, sess.ID),
		Step:      step.Name,
		Message:   "Executing: " + step.Name + "...",
		Progress:  0,
	})
	a.publish(ctx, events.WorkflowExecutionStarted{
		BaseEvent:  events.NewBase(events.WorkflowExecutionStartedEvent, sess.ID),
		WorkflowID: sess.ActiveWorkflow.ID,
		StepID:     step.ID,
	})

	result := a.executor.Run(ctx, step, sess.CollectedParameters, func(p models.StepProgress) {
		respond(events.StepProgress{
			BaseEvent: events.NewBase(events.StepProgressEvent, sess.ID),
			Step:      step.Name,
			Progress:  p.Percent,
			Message:   p.Message,
		})
	})

	if result.ValidationFailed() {
		sess.State = models.StateCollecting
		a.promptForMissing(sess, validationPrompt(result), result.Missing, respond)

		return
	}

	if !result.Success {
		sess.State = previousState
		a.publish(ctx, events.WorkflowExecutionFailed{
			BaseEvent:  events.NewBase(events.WorkflowExecutionFailedEvent, sess.ID),
			WorkflowID: sess.ActiveWorkflow.ID,
			StepID:     step.ID,
			Error:      result.Error,
		})
		a.respondMessage(sess, respond, events.StepFailed{
			BaseEvent:      events.NewBase(events.StepFailedEvent, sess.ID),
			Step:           step.Name,
			Error:          result.Error,
			Message:        fmt.Sprintf("%s failed: %s. You can ask me to retry.", step.Name, result.Error),
			RetryAvailable: true,
		})

		return
	}

	sess.CollectedParameters[step.ID] = result.Output

	if sess.CurrentStepIndex >= len(sess.ActiveWorkflow.Steps)-1 {
		a.completeWorkflow(ctx, sess, startedAt, respond)

		return
	}

	sess.CurrentStepIndex++
	sess.State = models.StateAwaitingContinuation
	next, _ := sess.CurrentStep()

	a.respondMessage(sess, respond, events.StepCompleted{
		BaseEvent:     events.NewBase(events.StepCompletedEvent, sess.ID),
		CompletedStep: step.Name,
		Result:        result.Output,
		NextStep:      next.Name,
		Message:       fmt.Sprintf("%s completed. Continue with the next step, %s? Reply \"continue\" or tell me %s.", step.Name, next.Name, next.Description),
	})
}

func (a *Agent) completeWorkflow(ctx context.Context, sess *models.Session, startedAt time.Time, respond RespondFunc) {
	workflow := sess.ActiveWorkflow
	result := finalResult(sess)
	summary := summarize(workflow.Name, result)

	sess.ResetWorkflow()

	a.publish(ctx, events.WorkflowExecutionCompleted{
		BaseEvent:  events.NewBase(events.WorkflowExecutionCompletedEvent, sess.ID),
		WorkflowID: workflow.ID,
		Result:     result,
		Duration:   time.Since(startedAt),
	})
	a.respondMessage(sess, respond, events.WorkflowCompleted{
		BaseEvent: events.NewBase(events.WorkflowCompletedEvent, sess.ID),
		Message:   "All done!",
		Result:    result,
		Summary:   summary,
	})
}

// promptForMissing emits the need-more-info prompt for the session's current
// step. When the synthesizer already phrased a question, that phrasing wins.
func (a *Agent) promptForMissing(sess *models.Session, message string, missing []string, respond RespondFunc) {
	step, ok := sess.CurrentStep()
	if !ok {
		a.respondMessage(sess, respond, events.NeedClarification{
			BaseEvent: events.NewBase(events.NeedClarificationEvent, sess.ID),
			Message:   orDefault(message, capabilitiesPrompt),
		})

		return
	}

	if len(missing) == 0 {
		missing = missingFor(step, sess.CollectedParameters)
	}

	a.respondMessage(sess, respond, events.NeedMoreInfo{
		BaseEvent:      events.NewBase(events.NeedMoreInfoEvent, sess.ID),
		Message:        orDefault(message, fmt.Sprintf("To run %s I still need: %s.", step.Name, strings.Join(missing, ", "))),
		Step:           step.Name,
		RequiredParams: step.RequiredParams,
		MissingParams:  missing,
	})
}

// respondMessage emits the event and records its user-facing message in the
// session history.
func (a *Agent) respondMessage(sess *models.Session, respond RespondFunc, event eventbus.Event) {
	if message := eventMessage(event); message != "" {
		sess.AppendMessage("assistant", message)
	}

	respond(event)
}

func (a *Agent) publish(ctx context.Context, event eventbus.Event) {
	if a.publisher == nil {
		return
	}

	if err := a.publisher.Publish(ctx, string(event.GetType()), event); err != nil {
		a.logger.WarnContext(ctx, "Failed to publish lifecycle event", "event", event.GetType(), "error", err)
	}
}

// eventMessage extracts the user-facing message from a turn event, if any.
func eventMessage(event eventbus.Event) string {
	switch e := event.(type) {
	case events.ChatResponse:
		return e.Message
	case events.NeedClarification:
		return e.Message
	case events.WorkflowStarted:
		return e.Message
	case events.NeedMoreInfo:
		return e.Message
	case events.StepCompleted:
		return e.Message
	case events.StepFailed:
		return e.Message
	case events.WorkflowCompleted:
		return e.Message
	default:
		return ""
	}
}

func snapshotOf(sess *models.Session) synthesizer.Snapshot {
	snapshot := synthesizer.Snapshot{
		CollectedParameters: sess.CollectedParameters,
	}

	if step, ok := sess.CurrentStep(); ok {
		snapshot.WorkflowID = sess.ActiveWorkflow.ID
		snapshot.WorkflowName = sess.ActiveWorkflow.Name
		snapshot.StepName = step.Name
		snapshot.StepIndex = sess.CurrentStepIndex
		snapshot.StepCount = len(sess.ActiveWorkflow.Steps)
		snapshot.RequiredParams = step.RequiredParams
	}

	return snapshot
}

func missingFor(step models.StepDefinition, collected map[string]any) []string {
	missing := make([]string, 0)

	for _, name := range step.RequiredParams {
		value, ok := collected[name]
		if !ok || value == nil {
			missing = append(missing, name)

			continue
		}

		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}

	return missing
}

func validationPrompt(result models.StepResult) string {
	parts := make([]string, 0, 2)

	if len(result.Missing) > 0 {
		parts = append(parts, "I still need: "+strings.Join(result.Missing, ", "))
	}

	if len(result.Invalid) > 0 {
		parts = append(parts, strings.Join(result.Invalid, "; "))
	}

	return strings.Join(parts, ". ")
}

// finalResult assembles the per-step outputs accumulated under the step ids.
func finalResult(sess *models.Session) map[string]any {
	results := make(map[string]any)

	for _, step := range sess.ActiveWorkflow.Steps {
		if output, ok := sess.CollectedParameters[step.ID]; ok {
			results[step.ID] = output
		}
	}

	return map[string]any{
		"workflow":        sess.ActiveWorkflow.Name,
		"steps_completed": len(sess.ActiveWorkflow.Steps),
		"results":         results,
		"completed_at":    time.Now().UTC().Format(time.RFC3339),
	}
}

func summarize(workflowName string, result map[string]any) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Completed %s (%v steps).\n", workflowName, result["steps_completed"])

	results, _ := result["results"].(map[string]any)

	if download, ok := results["download_content"].(map[string]any); ok {
		name, _ := download["fileName"].(string)
		if name == "" {
			name, _ = download["folderName"].(string)
		}

		fmt.Fprintf(&b, "Downloaded: %s\n", orDefault(name, "content files"))
	}

	if content, ok := results["generate_content"].(map[string]any); ok {
		title, _ := content["title"].(string)
		fmt.Fprintf(&b, "Generated copy: %s\n", orDefault(title, "title and description"))
	}

	if publish, ok := results["publish_video"].(map[string]any); ok {
		title, _ := publish["title"].(string)
		fmt.Fprintf(&b, "Published: %s\n", orDefault(title, "video"))
	}

	fmt.Fprintf(&b, "Finished at %s", result["completed_at"])

	return b.String()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
