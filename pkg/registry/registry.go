// Package registry holds the set of tools a running instance can dispatch
// workflow steps to. Tools are registered once at startup; resolution at
// runtime is read-only and safe for concurrent use.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/parleyhq/parley/pkg/models"
)

// Tool is a step backend. Execute receives the validated parameter set and a
// progress sink; it returns the step output to fold into the session.
type Tool interface {
	ID() string
	Execute(ctx context.Context, params map[string]any, onProgress models.ProgressFunc) (map[string]any, error)
}

type Registry struct {
	logger *slog.Logger
	tools  map[string]Tool
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("module", "registry"),
		tools:  make(map[string]Tool),
	}
}

// Register adds a tool. Registering the same id twice is a startup
// configuration error.
func (r *Registry) Register(tool Tool) error {
	id := tool.ID()

	if _, exists := r.tools[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, id)
	}

	r.tools[id] = tool
	r.logger.Info("Tool registered", "tool_id", id)

	return nil
}

// Resolve returns the tool for id. Callers treat a miss as a recoverable
// step failure, not a crash: catalog definitions may reference tools that
// this deployment does not carry.
func (r *Registry) Resolve(id string) (Tool, error) {
	tool, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotRegistered, id)
	}

	return tool, nil
}

// IDs returns the registered tool ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
