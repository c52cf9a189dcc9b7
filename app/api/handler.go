package api

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"arx/rag"
	"arx/store"
	"arx/types"
)

type AskHandler struct {
	engine  *rag.Engine
	history store.HistoryStorer
	logger  *slog.Logger
}

func NewAskHandler(engine *rag.Engine, history store.HistoryStorer) *AskHandler {
	return &AskHandler{
		engine:  engine,
		history: history,
		logger:  slog.Default(),
	}
}

// HandleAsk runs the full question pipeline: optional file ingestion,
// retrieval, generation, then persists the turn.
func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	params := types.AskParams{
		Question:     strings.TrimSpace(c.FormValue("question")),
		UseRAG:       c.FormValue("use_rag", "true") == "true",
		UseReranking: c.FormValue("use_reranking", "true") == "true",
		SessionID:    c.FormValue("session_id"),
		UserID:       c.FormValue("user_id", "anonymous"),
		ThreadID:     c.FormValue("thread_id"),
	}
	if nb := c.FormValue("nb_messages"); nb != "" {
		n, err := strconv.Atoi(nb)
		if err != nil {
			return ErrBadRequest("nb_messages must be an integer")
		}
		params.NbMessages = n
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	if params.NbMessages <= 0 {
		params.NbMessages = rag.DefaultOptions().NbMessages
	}
	if params.ThreadID == "" {
		params.ThreadID = store.NewThreadID()
	}

	uploads, filenames, err := h.collectUploads(c)
	if err != nil {
		return err
	}
	if params.Question == "" && len(uploads) == 0 {
		return ErrBadRequest("no question or file given")
	}

	ctx := c.Context()
	thread, err := h.history.EnsureThread(ctx, params.ThreadID, params.UserID)
	if err != nil {
		h.logger.Error("failed to ensure thread", "thread_id", params.ThreadID, "error", err)
		return err
	}

	turns, err := h.history.Turns(ctx, params.UserID, params.SessionID, params.ThreadID, params.NbMessages)
	if err != nil {
		h.logger.Error("failed to load chat history", "error", err)
		return err
	}

	h.logger.Info("ask received",
		"user_id", params.UserID,
		"session_id", params.SessionID,
		"thread_id", params.ThreadID,
		"files", len(uploads),
	)

	in := rag.AskInput{
		Query:        params.Question,
		History:      turns,
		NbMessages:   params.NbMessages,
		UseRAG:       params.UseRAG,
		UseReranking: params.UseReranking,
	}

	var (
		out      rag.AskOutput
		ingested []types.IngestResult
	)
	if len(uploads) > 0 {
		out, ingested = h.engine.AskWithUploads(ctx, in, uploads)
	} else {
		out = h.engine.Ask(ctx, in)
	}

	userMsg := params.Question
	if userMsg != "" && len(filenames) > 0 {
		userMsg += " (Files: " + strings.Join(filenames, ", ") + ")"
	} else if userMsg == "" && len(filenames) > 0 {
		userMsg = "Files: " + strings.Join(filenames, ", ")
	}

	if err := h.history.SaveTurn(ctx, params.UserID, params.SessionID, params.ThreadID, userMsg, out.Answer); err != nil {
		h.logger.Error("failed to save chat turn", "error", err)
	}

	if thread.Title == "" || thread.Title == store.DefaultThreadTitle {
		if err := h.history.RenameThread(ctx, params.ThreadID, store.GenerateTitle(userMsg)); err != nil {
			h.logger.Warn("failed to auto-title thread", "thread_id", params.ThreadID, "error", err)
		}
	}

	contextChunks := make([]types.ContextChunk, len(out.Evidence))
	for i, chunk := range out.Evidence {
		contextChunks[i] = types.ContextChunk{
			PageContent: chunk.Text,
			Metadata:    chunk.Meta,
		}
	}

	return c.JSON(types.AskResponse{
		Answer:    out.Answer,
		Context:   contextChunks,
		Ingested:  ingested,
		SessionID: params.SessionID,
		ThreadID:  params.ThreadID,
	})
}

func (h *AskHandler) collectUploads(c *fiber.Ctx) ([]rag.Upload, []string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// A plain urlencoded form has no files at all.
		return nil, nil, nil
	}

	var uploads []rag.Upload
	var filenames []string
	for _, header := range form.File["file"] {
		file, err := header.Open()
		if err != nil {
			return nil, nil, ErrBadRequest("failed to open uploaded file " + header.Filename)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, nil, ErrBadRequest("failed to read uploaded file " + header.Filename)
		}
		uploads = append(uploads, rag.Upload{Filename: header.Filename, Data: data})
		filenames = append(filenames, header.Filename)
	}
	return uploads, filenames, nil
}
