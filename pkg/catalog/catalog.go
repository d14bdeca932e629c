// Package catalog holds the static registry of named workflow definitions.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	_ "embed"

	"github.com/parleyhq/parley/pkg/models"
)

//go:embed workflows.json
var workflowsJSON []byte

// Catalog resolves workflow type keys, including recognized synonyms, to
// immutable workflow definitions. It is read-only after New returns.
type Catalog struct {
	workflows map[string]*models.WorkflowDefinition
	synonyms  map[string]string
	ordered   []*models.WorkflowDefinition
	logger    *slog.Logger
}

type definitionsFile struct {
	Workflows []models.WorkflowDefinition `json:"workflows"`
}

// Synonym table mapping loose oracle vocabulary onto canonical workflow ids.
// Many keys map to one workflow; the table is fixed at startup.
var defaultSynonyms = map[string]string{
	"douyin_content_creation": "douyin-content-creation",
	"douyin":                  "douyin-content-creation",
	"douyin_download":         "douyin-content-creation",
	"download":                "douyin-content-creation",
	"content_creation":        "douyin-content-creation",
	"抖音内容下载和创作":               "douyin-content-creation",
	"抖音下载":                    "douyin-content-creation",

	"video_publish":    "video-publish",
	"publish":          "video-publish",
	"publish_video":    "video-publish",
	"video_publishing": "video-publish",
	"视频发布到社交平台":        "video-publish",
	"视频发布":             "video-publish",

	"content_generation": "content-generation",
	"generate_content":   "content-generation",
	"copywriting":        "content-generation",
	"text_generation":    "content-generation",
	"纯文案生成":              "content-generation",
	"文案生成":               "content-generation",
}

// New loads and validates the embedded workflow definitions.
func New(logger *slog.Logger) (*Catalog, error) {
	return Load(logger, workflowsJSON)
}

// Load builds a catalog from raw definition JSON. Every definition is checked
// against the definition schema before it is admitted.
func Load(logger *slog.Logger, raw []byte) (*Catalog, error) {
	if err := validateDefinitions(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	var file definitionsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	c := &Catalog{
		workflows: make(map[string]*models.WorkflowDefinition, len(file.Workflows)),
		synonyms:  make(map[string]string, len(defaultSynonyms)),
		ordered:   make([]*models.WorkflowDefinition, 0, len(file.Workflows)),
		logger:    logger.With("module", "catalog"),
	}

	for i := range file.Workflows {
		workflow := &file.Workflows[i]
		if _, exists := c.workflows[workflow.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorkflow, workflow.ID)
		}

		c.workflows[workflow.ID] = workflow
		c.ordered = append(c.ordered, workflow)
	}

	for synonym, canonical := range defaultSynonyms {
		if _, exists := c.workflows[canonical]; !exists {
			c.logger.Debug("Skipping synonym for unknown workflow", "synonym", synonym, "workflow", canonical)

			continue
		}

		c.synonyms[normalizeKey(synonym)] = canonical
	}

	c.logger.Info("Workflow catalog loaded", "workflows", len(c.workflows), "synonyms", len(c.synonyms))

	return c, nil
}

// Lookup resolves a workflow type key or synonym to its definition.
func (c *Catalog) Lookup(workflowType string) (*models.WorkflowDefinition, error) {
	key := normalizeKey(workflowType)
	if key == "" {
		return nil, fmt.Errorf("%w: empty workflow type", ErrWorkflowNotFound)
	}

	if workflow, ok := c.workflows[key]; ok {
		return workflow, nil
	}

	if canonical, ok := c.synonyms[key]; ok {
		return c.workflows[canonical], nil
	}

	return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowType)
}

// All returns the definitions in load order, for the management API.
func (c *Catalog) All() []*models.WorkflowDefinition {
	out := make([]*models.WorkflowDefinition, len(c.ordered))
	copy(out, c.ordered)

	return out
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))

	return strings.ReplaceAll(key, " ", "_")
}
