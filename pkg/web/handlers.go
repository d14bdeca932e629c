// Package web provides the management REST API: catalog listing and session
// administration. The conversational surface lives in the gateway; this API
// exists for clients and operators that need to inspect or prime sessions
// out of band.
package web

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/catalog"
	"github.com/parleyhq/parley/pkg/session"
)

const serviceVersion = "1.0.0"

type APIHandlers struct {
	store     *session.Store
	catalog   *catalog.Catalog
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(store *session.Store, cat *catalog.Catalog, validator *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		store:     store,
		catalog:   cat,
		validator: validator,
		logger:    logger.With("module", "web"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"service":   "parley",
		"version":   serviceVersion,
		"timestamp": time.Now().UTC(),
		"features":  []string{"douyin_download", "content_generation", "video_publish"},
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	definitions := h.catalog.All()
	summaries := make([]WorkflowSummary, 0, len(definitions))

	for _, definition := range definitions {
		summaries = append(summaries, WorkflowSummary{
			ID:               definition.ID,
			Name:             definition.Name,
			Description:      definition.Description,
			Category:         definition.Category,
			EstimatedSeconds: definition.EstimatedSeconds,
			Steps:            len(definition.Steps),
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"workflows": summaries,
	})
}

func (h *APIHandlers) CreateSession(c fiber.Ctx) error {
	var req CreateSessionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	if _, err := h.store.Create(sessionID); err != nil {
		return conflict(c, "session already exists")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"session_id": sessionID,
		"message":    "session created",
	})
}

func (h *APIHandlers) DeleteSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	if !h.store.Delete(id) {
		return notFound(c, "Session not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetSessionStats(c fiber.Ctx) error {
	return c.JSON(h.store.Stats())
}
