package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soilwise/soilwise/internal/answer"
	"github.com/soilwise/soilwise/internal/llm"
	"github.com/soilwise/soilwise/internal/log"
)

// Answerer resolves a query into an answer with sources.
type Answerer interface {
	Answer(ctx context.Context, query string, history []answer.Turn, ownerID string) (answer.Response, error)
}

// ChatHandler handles the question-answering endpoint.
type ChatHandler struct {
	answerer     Answerer
	defaultOwner string
	logger       log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(answerer Answerer, defaultOwner string, logger log.Logger) *ChatHandler {
	return &ChatHandler{answerer: answerer, defaultOwner: defaultOwner, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

// ChatRequest is one question, optionally with conversation history.
type ChatRequest struct {
	Query   string        `json:"query"`
	History []answer.Turn `json:"history,omitempty"`
}

// chat answers one question. Request body: {"query": "...", "history": [...]}.
// Response body: {"answer": "...", "sources": [...], "cached": bool}.
func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	owner := h.defaultOwner
	if v := r.Header.Get(ownerHeader); v != "" {
		owner = v
	}

	resp, err := h.answerer.Answer(r.Context(), req.Query, req.History, owner)
	if err != nil {
		switch {
		case errors.Is(err, answer.ErrEmptyQuery):
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "query is required")
		case errors.Is(err, llm.ErrSynthesisFailed):
			h.logger.Error("answer synthesis failed", "error", err)
			writeError(w, h.logger, http.StatusBadGateway, "synthesis_failed", "failed to generate an answer")
		default:
			h.logger.Error("answer request failed", "error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to answer query")
		}
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
