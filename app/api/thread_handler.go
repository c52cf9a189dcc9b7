package api

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"arx/store"
	"arx/types"
)

type ThreadHandler struct {
	history store.HistoryStorer
	logger  *slog.Logger
}

func NewThreadHandler(history store.HistoryStorer) *ThreadHandler {
	return &ThreadHandler{
		history: history,
		logger:  slog.Default(),
	}
}

// HandleHistory returns the ordered turns of one thread.
func (h *ThreadHandler) HandleHistory(c *fiber.Ctx) error {
	threadID := c.Query("thread_id")
	if threadID == "" {
		return ErrBadRequest("thread_id missing")
	}
	userID := c.Query("user_id", "anonymous")
	sessionID := c.Query("session_id", "default")
	nbMessages := 100
	if nb := c.Query("nb_messages"); nb != "" {
		n, err := strconv.Atoi(nb)
		if err != nil {
			return ErrBadRequest("nb_messages must be an integer")
		}
		nbMessages = n
	}

	turns, err := h.history.Turns(c.Context(), userID, sessionID, threadID, nbMessages)
	if err != nil {
		h.logger.Error("failed to load history", "thread_id", threadID, "error", err)
		return err
	}
	if turns == nil {
		turns = []types.ConversationTurn{}
	}
	return c.JSON(turns)
}

// HandleChats lists a user's threads, newest activity first, each with
// a short excerpt of its last message.
func (h *ThreadHandler) HandleChats(c *fiber.Ctx) error {
	userID := c.Query("user_id", "anonymous")
	previews, err := h.history.ListThreadPreviews(c.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list threads", "user_id", userID, "error", err)
		return err
	}
	if previews == nil {
		previews = []types.ThreadPreview{}
	}
	return c.JSON(previews)
}

// HandleListThreads returns a user's full thread records, newest
// first, without the last-message excerpt HandleChats adds.
func (h *ThreadHandler) HandleListThreads(c *fiber.Ctx) error {
	userID := c.Query("user_id", "anonymous")
	threads, err := h.history.ListThreads(c.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list threads", "user_id", userID, "error", err)
		return err
	}
	if threads == nil {
		threads = []types.Thread{}
	}
	return c.JSON(threads)
}

func (h *ThreadHandler) HandleCreateThread(c *fiber.Ctx) error {
	var params struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if params.UserID == "" {
		params.UserID = "anonymous"
	}

	thread, err := h.history.CreateThread(c.Context(), params.UserID)
	if err != nil {
		h.logger.Error("failed to create thread", "user_id", params.UserID, "error", err)
		return err
	}
	return c.JSON(thread)
}

func (h *ThreadHandler) HandleRenameThread(c *fiber.Ctx) error {
	threadID := c.Params("id")

	var params types.ThreadParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest("invalid JSON request")
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	if err := h.history.RenameThread(c.Context(), threadID, params.Title); err != nil {
		return ErrNotFound(threadID, "thread")
	}
	return c.JSON(fiber.Map{"status": "renamed", "thread_id": threadID})
}

func (h *ThreadHandler) HandleDeleteThread(c *fiber.Ctx) error {
	threadID := c.Params("id")
	if err := h.history.DeleteThread(c.Context(), threadID); err != nil {
		return ErrNotFound(threadID, "thread")
	}
	return c.JSON(fiber.Map{"status": "deleted", "thread_id": threadID})
}
