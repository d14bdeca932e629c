// Package synthesizer turns unreliable oracle output into canonical intent
// records. Three quality levels are handled: a clean structured object, an
// object buried in prose, and free text with no structure at all.
package synthesizer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/oracle"
)

// Snapshot is the session state the synthesizer is allowed to see: enough to
// build the oracle prompt and compute missing parameters, nothing mutable.
type Snapshot struct {
	WorkflowID          string
	WorkflowName        string
	StepName            string
	StepIndex           int
	StepCount           int
	RequiredParams      []string
	CollectedParameters map[string]any
}

// Active reports whether the snapshot carries an active workflow.
func (s Snapshot) Active() bool {
	return s.WorkflowID != ""
}

type Synthesizer struct {
	oracle oracle.Client
	logger *slog.Logger
}

func New(oracleClient oracle.Client, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		oracle: oracleClient,
		logger: logger.With("module", "synthesizer"),
	}
}

// Analyze asks the oracle to interpret the user's message and synthesizes a
// canonical intent record from whatever comes back. Oracle transport failures
// never escape this method: after the client's retry budget is exhausted the
// result is a clarify record with a generic prompt.
func (s *Synthesizer) Analyze(ctx context.Context, userText string, snapshot Snapshot) models.IntentRecord {
	prompt := BuildPrompt(userText, snapshot)

	completion, err := s.oracle.Complete(ctx, prompt)
	if err != nil {
		s.logger.WarnContext(ctx, "Oracle analysis failed, synthesizing clarify record", "error", err)

		return clarifyRecord()
	}

	record := s.Synthesize(completion, snapshot)
	s.logger.DebugContext(ctx, "Synthesized intent record",
		"action", record.Action,
		"workflow_type", record.WorkflowType,
		"parameters", len(record.Parameters),
	)

	return record
}

// Synthesize converts raw oracle text into an intent record. It is
// deterministic: the same text and snapshot always produce the same record.
func (s *Synthesizer) Synthesize(text string, snapshot Snapshot) models.IntentRecord {
	if raw, ok := parseObject(text); ok {
		return mapRecord(raw)
	}

	if candidate, ok := firstBalancedObject(text); ok {
		if raw, ok := parseObject(candidate); ok {
			return mapRecord(raw)
		}
	}

	return FallbackParse(text, snapshot)
}

func clarifyRecord() models.IntentRecord {
	return models.IntentRecord{
		Action:  models.ActionClarify,
		Message: "Please tell me what you would like to do. I can download douyin content, generate copy, or publish videos.",
	}
}

func parseObject(text string) (map[string]any, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}

	return raw, true
}

// firstBalancedObject locates the first top-level {...} object in text,
// tracking string literals and escapes so braces inside values do not
// unbalance the scan.
func firstBalancedObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if escaped {
			escaped = false

			continue
		}

		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			if start >= 0 {
				inString = !inString
			}
		case '{':
			if inString {
				continue
			}

			if start < 0 {
				start = i
			}

			depth++
		case '}':
			if inString || start < 0 {
				continue
			}

			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}
