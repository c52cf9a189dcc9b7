package types

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// AskParams is the multipart form of POST /api/v1/ask. Files ride
// alongside in the multipart body and are handled separately.
type AskParams struct {
	Question     string `form:"question" json:"question"`
	UseRAG       bool   `form:"use_rag" json:"use_rag"`
	UseReranking bool   `form:"use_reranking" json:"use_reranking"`
	SessionID    string `form:"session_id" json:"session_id" validate:"required"`
	UserID       string `form:"user_id" json:"user_id"`
	ThreadID     string `form:"thread_id" json:"thread_id"`
	NbMessages   int    `form:"nb_messages" json:"nb_messages"`
}

func (params *AskParams) Validate() map[string]string {
	return validateStruct(params)
}

// ThreadParams creates or renames a thread.
type ThreadParams struct {
	UserID string `json:"user_id"`
	Title  string `json:"title" validate:"required"`
}

func (params *ThreadParams) Validate() map[string]string {
	return validateStruct(params)
}

// AddDocumentParams is the admin raw-text ingestion request.
type AddDocumentParams struct {
	Text   string `json:"text" validate:"required"`
	Source string `json:"source"`
	Title  string `json:"title"`
}

func (params *AddDocumentParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// ContextChunk is the wire form of an evidence chunk in AskResponse.
type ContextChunk struct {
	PageContent string    `json:"page_content"`
	Metadata    ChunkMeta `json:"metadata"`
}

type AskResponse struct {
	Answer    string         `json:"answer"`
	Context   []ContextChunk `json:"context"`
	Ingested  []IngestResult `json:"ingested,omitempty"`
	SessionID string         `json:"session_id"`
	ThreadID  string         `json:"thread_id"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}
