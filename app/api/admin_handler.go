package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"arx/rag"
	"arx/types"
)

type AdminHandler struct {
	engine *rag.Engine
	logger *slog.Logger
}

func NewAdminHandler(engine *rag.Engine) *AdminHandler {
	return &AdminHandler{
		engine: engine,
		logger: slog.Default(),
	}
}

func (h *AdminHandler) HandleReloadIndex(c *fiber.Ctx) error {
	if err := h.engine.ReloadIndex(c.Context()); err != nil {
		h.logger.Error("index reload failed", "error", err)
		return err
	}
	count, err := h.engine.IndexCount(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "index reloaded", "chunks": count})
}

func (h *AdminHandler) HandleResetIndex(c *fiber.Ctx) error {
	if err := h.engine.ResetIndex(c.Context()); err != nil {
		h.logger.Error("index reset failed", "error", err)
		return err
	}
	return c.JSON(fiber.Map{"status": "index reset"})
}

// HandleAddDocument ingests raw text without going through file
// extraction.
func (h *AdminHandler) HandleAddDocument(c *fiber.Ctx) error {
	var params types.AddDocumentParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	meta := types.ChunkMeta{
		Source: params.Source,
		Title:  params.Title,
	}
	if meta.Title == "" {
		meta.Title = "Untitled document"
	}

	result, err := h.engine.AddDocument(c.Context(), params.Text, meta)
	if err != nil {
		h.logger.Error("admin document ingestion failed", "error", err)
		return err
	}
	return c.JSON(result)
}
