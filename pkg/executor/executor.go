// Package executor runs single workflow steps: it validates the collected
// parameters against the step definition, resolves the tool, and shepherds
// the invocation. Every failure mode becomes a StepResult; the executor
// never panics on bad catalog data or a misbehaving tool.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/registry"
)

const defaultStepTimeout = 5 * time.Minute

// Executor dispatches validated steps to registered tools.
type Executor struct {
	registry    *registry.Registry
	stepTimeout time.Duration
	logger      *slog.Logger

	patternMu sync.Mutex
	patterns  map[string]*regexp.Regexp
}

func NewExecutor(reg *registry.Registry, stepTimeout time.Duration, logger *slog.Logger) *Executor {
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}

	return &Executor{
		registry:    reg,
		stepTimeout: stepTimeout,
		logger:      logger.With("module", "executor"),
		patterns:    make(map[string]*regexp.Regexp),
	}
}

// Run executes one step against the collected parameter set. Progress
// reports forwarded to onProgress are monotone non-decreasing and clamped
// to [0,100]; a report is always emitted at the start and, on success, at
// 100. The caller decides what to do with the result; nothing here touches
// session state.
func (e *Executor) Run(ctx context.Context, step models.StepDefinition, params map[string]any, onProgress models.ProgressFunc) models.StepResult {
	result := models.StepResult{StepID: step.ID, StepName: step.Name}

	missing, invalid := e.validate(step, params)
	if len(missing) > 0 || len(invalid) > 0 {
		result.Missing = missing
		result.Invalid = invalid
		result.Error = validationMessage(missing, invalid)

		return result
	}

	tool, err := e.registry.Resolve(step.Tool)
	if err != nil {
		e.logger.WarnContext(ctx, "Step references unregistered tool", "step_id", step.ID, "tool", step.Tool)
		result.Error = fmt.Sprintf("tool %q is not available", step.Tool)

		return result
	}

	forward := e.progressForwarder(onProgress)
	forward(models.StepProgress{Percent: 0, Message: "Starting " + step.Name})

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	e.logger.InfoContext(ctx, "Executing step", "step_id", step.ID, "tool", step.Tool)

	output, err := tool.Execute(stepCtx, params, forward)
	if err != nil {
		e.logger.WarnContext(ctx, "Step failed", "step_id", step.ID, "tool", step.Tool, "error", err)
		result.Error = err.Error()

		return result
	}

	forward(models.StepProgress{Percent: 100, Message: step.Name + " completed"})

	result.Success = true
	result.Output = output

	return result
}

// validate checks required parameters for presence and all present
// parameters against the step's format rules. It itemizes every failure so
// the caller can prompt for all of them in one turn.
func (e *Executor) validate(step models.StepDefinition, params map[string]any) (missing, invalid []string) {
	for _, name := range step.RequiredParams {
		if isBlank(params[name]) {
			missing = append(missing, name)
		}
	}

	for name, rule := range step.Validation {
		value, ok := params[name]
		if !ok || isBlank(value) {
			continue
		}

		text, ok := value.(string)
		if !ok {
			continue
		}

		if reason := e.checkRule(name, text, rule); reason != "" {
			invalid = append(invalid, reason)
		}
	}

	return missing, invalid
}

func (e *Executor) checkRule(name, value string, rule models.ParamRule) string {
	if rule.MinLength > 0 && len([]rune(value)) < rule.MinLength {
		return ruleMessage(rule, fmt.Sprintf("%s must be at least %d characters", name, rule.MinLength))
	}

	if rule.MaxLength > 0 && len([]rune(value)) > rule.MaxLength {
		return ruleMessage(rule, fmt.Sprintf("%s must be at most %d characters", name, rule.MaxLength))
	}

	if rule.Pattern != "" {
		pattern, err := e.compile(rule.Pattern)
		if err != nil {
			e.logger.Warn("Invalid validation pattern in catalog", "param", name, "pattern", rule.Pattern, "error", err)

			return ""
		}

		if !pattern.MatchString(value) {
			return ruleMessage(rule, fmt.Sprintf("%s has an unexpected format", name))
		}
	}

	return ""
}

func (e *Executor) compile(pattern string) (*regexp.Regexp, error) {
	e.patternMu.Lock()
	defer e.patternMu.Unlock()

	if compiled, ok := e.patterns[pattern]; ok {
		return compiled, nil
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	e.patterns[pattern] = compiled

	return compiled, nil
}

// progressForwarder clamps reports to [0,100] and drops regressions, so
// tools cannot emit a shrinking progress bar.
func (e *Executor) progressForwarder(onProgress models.ProgressFunc) models.ProgressFunc {
	if onProgress == nil {
		return func(models.StepProgress) {}
	}

	highest := -1

	return func(p models.StepProgress) {
		if p.Percent < 0 {
			p.Percent = 0
		}

		if p.Percent > 100 {
			p.Percent = 100
		}

		if p.Percent < highest {
			p.Percent = highest
		}

		highest = p.Percent
		onProgress(p)
	}
}

func ruleMessage(rule models.ParamRule, fallback string) string {
	if rule.Message != "" {
		return rule.Message
	}

	return fallback
}

func validationMessage(missing, invalid []string) string {
	parts := make([]string, 0, 2)

	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}

	if len(invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(invalid, "; "))
	}

	return strings.Join(parts, "; ")
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}
