package handlers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/api/response"
)

// KnowledgeWriter stores reference documents for reply grounding.
type KnowledgeWriter interface {
	AddKnowledge(ctx context.Context, id, content string, metadata map[string]string) error
}

// KnowledgeHandler handles knowledge-base HTTP requests
type KnowledgeHandler struct {
	writer KnowledgeWriter
}

// NewKnowledgeHandler creates a new KnowledgeHandler
func NewKnowledgeHandler(writer KnowledgeWriter) *KnowledgeHandler {
	return &KnowledgeHandler{writer: writer}
}

// AddKnowledgeRequest represents the request body for adding a document
type AddKnowledgeRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Add handles POST /api/knowledge
func (h *KnowledgeHandler) Add(c echo.Context) error {
	var req AddKnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return response.BadRequest(c, "content is required")
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}

	metadata := map[string]string{}
	if req.Title != "" {
		metadata["title"] = req.Title
	}
	if req.Source != "" {
		metadata["source"] = req.Source
	}

	if err := h.writer.AddKnowledge(c.Request().Context(), id, req.Content, metadata); err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"id": id})
}
