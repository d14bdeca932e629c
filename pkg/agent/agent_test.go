package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/agent"
	"github.com/parleyhq/parley/pkg/catalog"
	"github.com/parleyhq/parley/pkg/eventbus"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/executor"
	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/registry"
	"github.com/parleyhq/parley/pkg/session"
	"github.com/parleyhq/parley/pkg/synthesizer"
)

// scriptedOracle plays back canned completions one turn at a time.
type scriptedOracle struct {
	responses []string
	calls     int
}

func (s *scriptedOracle) Complete(_ context.Context, _ string) (string, error) {
	if s.calls >= len(s.responses) {
		return "", errors.New("oracle script exhausted")
	}

	response := s.responses[s.calls]
	s.calls++

	return response, nil
}

type fakeTool struct {
	id          string
	err         error
	output      map[string]any
	invocations []map[string]any
}

func (f *fakeTool) ID() string { return f.id }

func (f *fakeTool) Execute(_ context.Context, params map[string]any, onProgress models.ProgressFunc) (map[string]any, error) {
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}

	f.invocations = append(f.invocations, copied)

	if onProgress != nil {
		onProgress(models.StepProgress{Percent: 50, Message: "working"})
	}

	if f.err != nil {
		return nil, f.err
	}

	if f.output != nil {
		return f.output, nil
	}

	return map[string]any{"done": true}, nil
}

type harness struct {
	agent      *agent.Agent
	store      *session.Store
	oracle     *scriptedOracle
	downloader *fakeTool
	generator  *fakeTool
	events     []eventbus.Event
}

func (h *harness) respond(event eventbus.Event) {
	h.events = append(h.events, event)
}

func (h *harness) turn(t *testing.T, sessionID, text string) {
	t.Helper()
	h.agent.ProcessMessage(context.Background(), sessionID, text, h.respond)
}

func (h *harness) lastEvent(t *testing.T) eventbus.Event {
	t.Helper()
	require.NotEmpty(t, h.events)

	return h.events[len(h.events)-1]
}

func (h *harness) session(t *testing.T, id string) *models.Session {
	t.Helper()

	sess, err := h.store.Get(id)
	require.NoError(t, err)

	return sess
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, oracleResponses ...string) *harness {
	t.Helper()

	logger := testLogger()

	cat, err := catalog.New(logger)
	require.NoError(t, err)

	downloader := &fakeTool{
		id:     "douyin-downloader",
		output: map[string]any{"fileName": "dance.mp4", "filePath": "/downloads/dance.mp4"},
	}
	generator := &fakeTool{
		id:     "content-generator",
		output: map[string]any{"title": "Evening dance", "description": "A quick routine"},
	}

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.Register(downloader))
	require.NoError(t, reg.Register(generator))
	require.NoError(t, reg.Register(&fakeTool{id: "video-publisher"}))

	store := session.NewStore(session.Config{}, nil, logger)
	oracle := &scriptedOracle{responses: oracleResponses}

	a := agent.New(store, cat,
		synthesizer.New(oracle, logger),
		executor.NewExecutor(reg, time.Minute, logger),
		nil, logger)

	return &harness{agent: a, store: store, oracle: oracle, downloader: downloader, generator: generator}
}

func intent(action string, fields map[string]any) string {
	record := map[string]any{"action": action}
	for k, v := range fields {
		record[k] = v
	}

	encoded, _ := json.Marshal(record)

	return string(encoded)
}

func TestProcessMessageUnknownSession(t *testing.T) {
	h := newHarness(t)

	h.turn(t, "ghost", "hello")

	turnError, ok := h.lastEvent(t).(events.TurnError)
	require.True(t, ok)
	assert.Equal(t, "SESSION_NOT_FOUND", turnError.Code)
}

func TestProcessMessageChat(t *testing.T) {
	h := newHarness(t, intent("chat", map[string]any{"message": "Hi there, what a nice day!"}))

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "hello")

	chat, ok := h.lastEvent(t).(events.ChatResponse)
	require.True(t, ok)
	assert.Equal(t, "Hi there, what a nice day!", chat.Message)

	sess := h.session(t, "s1")
	assert.Equal(t, models.StateIdle, sess.State)
	assert.Len(t, sess.MessageHistory, 2)
}

func TestStartResolvesWorkflow(t *testing.T) {
	// Scenario: a fresh session asking to download douyin content and
	// generate copy lands in COLLECTING on step 0.
	h := newHarness(t, intent("start", map[string]any{
		"workflow_type": "douyin-content-creation",
		"parameters":    map[string]any{},
	}))

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "download douyin video and generate travel copy")

	started, ok := h.lastEvent(t).(events.WorkflowStarted)
	require.True(t, ok)
	assert.Equal(t, "douyin-content-creation", started.WorkflowID)
	require.NotNil(t, started.NextStep)
	assert.Equal(t, "download_content", started.NextStep.ID)

	sess := h.session(t, "s1")
	assert.Equal(t, models.StateCollecting, sess.State)
	assert.Equal(t, 0, sess.CurrentStepIndex)
	require.NotNil(t, sess.ActiveWorkflow)
}

func TestStartUnknownWorkflowAsksForClarification(t *testing.T) {
	h := newHarness(t, intent("start", map[string]any{"workflow_type": "fold-laundry"}))

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "please fold my laundry")

	_, ok := h.lastEvent(t).(events.NeedClarification)
	require.True(t, ok)

	sess := h.session(t, "s1")
	assert.Equal(t, models.StateIdle, sess.State)
	assert.Nil(t, sess.ActiveWorkflow)
}

func TestCollectThenExecute(t *testing.T) {
	// Scenario: COLLECTING without douyin_url, the next message carries the
	// URL and an execute intent; the tool receives exactly the merged set.
	h := newHarness(t,
		intent("start", map[string]any{"workflow_type": "douyin-content-creation"}),
		intent("need_more_info", map[string]any{
			"missing_parameters": []string{"douyin_url"},
			"message":            "Please share the douyin link.",
		}),
		intent("execute", map[string]any{
			"parameters": map[string]any{"douyin_url": "https://v.douyin.com/abc123"},
		}),
	)

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "download a douyin video for me")
	h.turn(t, "s1", "what do you need?")

	moreInfo, ok := h.lastEvent(t).(events.NeedMoreInfo)
	require.True(t, ok)
	assert.Equal(t, []string{"douyin_url"}, moreInfo.MissingParams)

	h.turn(t, "s1", "here: https://v.douyin.com/abc123 go ahead")

	completed, ok := h.lastEvent(t).(events.StepCompleted)
	require.True(t, ok)
	assert.Equal(t, "Download douyin content", completed.CompletedStep)

	require.Len(t, h.downloader.invocations, 1)
	assert.Equal(t, "https://v.douyin.com/abc123", h.downloader.invocations[0]["douyin_url"])

	sess := h.session(t, "s1")
	assert.Equal(t, models.StateAwaitingContinuation, sess.State)
	assert.Equal(t, 1, sess.CurrentStepIndex)
	assert.Contains(t, sess.CollectedParameters, "download_content")
}

func TestExecuteWithMissingParamsPromptsWithoutOracle(t *testing.T) {
	h := newHarness(t,
		intent("start", map[string]any{"workflow_type": "douyin-content-creation"}),
		intent("execute", map[string]any{}),
	)

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "download douyin content")
	h.turn(t, "s1", "run it")

	moreInfo, ok := h.lastEvent(t).(events.NeedMoreInfo)
	require.True(t, ok)
	assert.Contains(t, moreInfo.MissingParams, "douyin_url")
	assert.Empty(t, h.downloader.invocations)

	// validation failure is answered from the step contract, not by asking
	// the oracle again
	assert.Equal(t, 2, h.oracle.calls)

	sess := h.session(t, "s1")
	assert.Equal(t, models.StateCollecting, sess.State)
}

func TestStepFailurePreservesStateForRetry(t *testing.T) {
	// Scenario: a failed tool call leaves the step index and collected
	// parameters untouched so a retry reuses them as-is.
	h := newHarness(t,
		intent("start", map[string]any{"workflow_type": "douyin-content-creation"}),
		intent("execute", map[string]any{
			"parameters": map[string]any{"douyin_url": "https://v.douyin.com/abc123"},
		}),
		intent("execute", map[string]any{}),
	)

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.downloader.err = errors.New("download service timeout")

	h.turn(t, "s1", "download douyin content")
	h.turn(t, "s1", "https://v.douyin.com/abc123 run it")

	failed, ok := h.lastEvent(t).(events.StepFailed)
	require.True(t, ok)
	assert.True(t, failed.RetryAvailable)

	sess := h.session(t, "s1")
	assert.Equal(t, 0, sess.CurrentStepIndex)
	assert.Equal(t, "https://v.douyin.com/abc123", sess.CollectedParameters["douyin_url"])

	// retry without repeating the URL
	h.downloader.err = nil
	h.turn(t, "s1", "try again")

	_, ok = h.lastEvent(t).(events.StepCompleted)
	require.True(t, ok)
	require.Len(t, h.downloader.invocations, 2)
	assert.Equal(t, "https://v.douyin.com/abc123", h.downloader.invocations[1]["douyin_url"])
}

func TestWorkflowCompletionResetsSession(t *testing.T) {
	// Scenario: the final step of the two-step workflow completes and the
	// session returns to IDLE with everything cleared.
	h := newHarness(t,
		intent("start", map[string]any{"workflow_type": "douyin-content-creation"}),
		intent("execute", map[string]any{
			"parameters": map[string]any{"douyin_url": "https://v.douyin.com/abc123"},
		}),
		intent("continue", map[string]any{
			"parameters": map[string]any{"topic": "travel vlog"},
		}),
	)

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "download douyin content and make copy")
	h.turn(t, "s1", "https://v.douyin.com/abc123 go")
	h.turn(t, "s1", "continue with a travel vlog topic")

	completed, ok := h.lastEvent(t).(events.WorkflowCompleted)
	require.True(t, ok)
	assert.NotEmpty(t, completed.Summary)

	results, ok := completed.Result["results"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, results, "download_content")
	assert.Contains(t, results, "generate_content")

	sess := h.session(t, "s1")
	assert.Equal(t, models.StateIdle, sess.State)
	assert.Nil(t, sess.ActiveWorkflow)
	assert.Equal(t, 0, sess.CurrentStepIndex)
	assert.Empty(t, sess.CollectedParameters)
}

func TestContinueWhileCollectingDoesNotExecute(t *testing.T) {
	h := newHarness(t,
		intent("start", map[string]any{"workflow_type": "douyin-content-creation"}),
		intent("continue", map[string]any{}),
	)

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "download douyin content")
	h.turn(t, "s1", "keep going")

	_, ok := h.lastEvent(t).(events.NeedMoreInfo)
	require.True(t, ok)
	assert.Empty(t, h.downloader.invocations)
}

func TestMergeIsMonotonicAcrossTurns(t *testing.T) {
	h := newHarness(t,
		intent("start", map[string]any{
			"workflow_type": "douyin-content-creation",
			"parameters":    map[string]any{"douyin_url": "https://v.douyin.com/abc123"},
		}),
		intent("need_more_info", map[string]any{
			"parameters": map[string]any{"douyin_url": "", "topic": "city food"},
		}),
	)

	_, err := h.store.Create("s1")
	require.NoError(t, err)

	h.turn(t, "s1", "download https://v.douyin.com/abc123")
	h.turn(t, "s1", "the topic is city food")

	sess := h.session(t, "s1")
	assert.Equal(t, "https://v.douyin.com/abc123", sess.CollectedParameters["douyin_url"])
	assert.Equal(t, "city food", sess.CollectedParameters["topic"])
}

// TestExecuteNeverReachesToolWithMissingParams drives random interleavings
// of actions and partial parameter sets and checks the one property that
// must always hold: the download tool is never invoked without a usable
// douyin_url.
func TestExecuteNeverReachesToolWithMissingParams(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	actions := []string{"start", "continue", "need_more_info", "execute"}

	for run := 0; run < 20; run++ {
		script := make([]string, 0, 12)

		for i := 0; i < 12; i++ {
			action := actions[rng.Intn(len(actions))]
			fields := map[string]any{}

			if action == "start" {
				fields["workflow_type"] = "douyin-content-creation"
			}

			switch rng.Intn(3) {
			case 0:
				fields["parameters"] = map[string]any{"douyin_url": "https://v.douyin.com/ok"}
			case 1:
				fields["parameters"] = map[string]any{"douyin_url": ""}
			}

			script = append(script, intent(action, fields))
		}

		h := newHarness(t, script...)

		sessionID := fmt.Sprintf("s-%d", run)
		_, err := h.store.Create(sessionID)
		require.NoError(t, err)

		for i := range script {
			h.turn(t, sessionID, fmt.Sprintf("message %d", i))
		}

		for _, invocation := range h.downloader.invocations {
			url, ok := invocation["douyin_url"].(string)
			require.True(t, ok, "invoked without douyin_url")
			require.NotEmpty(t, url)
		}

		for _, invocation := range h.generator.invocations {
			topic, ok := invocation["topic"].(string)
			require.True(t, ok, "invoked without topic")
			require.NotEmpty(t, topic)
		}
	}
}
