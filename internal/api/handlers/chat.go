package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/studybuddy-ai/backend/internal/api"
	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/studybuddy-ai/backend/internal/service"
)

// ChatService is the answering boundary the handler depends on.
type ChatService interface {
	RetrieveContext(ctx context.Context, question, fileID string) string
	Answer(ctx context.Context, input service.AnswerInput) service.AnswerResult
	StreamAnswer(ctx context.Context, input service.AnswerInput) <-chan domain.StreamChunk
	StoreConversation(ctx context.Context, question, answer string, source domain.AnswerSource) error
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []domain.Turn `json:"conversation_history"`
	FileID              string        `json:"file_id"`
	Stream              bool          `json:"stream"`
}

type ChatResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	ContextUsed    bool   `json:"context_used"`
	WebSearchUsed  bool   `json:"web_search_used"`
	StoredInMemory bool   `json:"stored_in_memory"`
}

// Chat answers a question, either as a single JSON document or as an NDJSON
// stream when the request asks for one.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	for _, turn := range req.ConversationHistory {
		if turn.Role != domain.RoleUser && turn.Role != domain.RoleAssistant {
			api.Error(w, http.StatusBadRequest, "conversation history roles must be user or assistant")
			return
		}
	}

	input := service.AnswerInput{
		Question:         req.Message,
		History:          req.ConversationHistory,
		RetrievedContext: h.svc.RetrieveContext(r.Context(), req.Message, req.FileID),
	}

	if req.Stream {
		h.stream(w, r, input)
		return
	}

	result := h.svc.Answer(r.Context(), input)

	stored := false
	if err := h.svc.StoreConversation(r.Context(), req.Message, result.Text, result.Source); err != nil {
		log.Printf("failed to store conversation: %v", err)
	} else {
		stored = true
	}

	api.JSON(w, http.StatusOK, ChatResponse{
		Success:        true,
		Response:       result.Text,
		ContextUsed:    result.Source.ContextUsed(),
		WebSearchUsed:  result.Source.WebSearchUsed(),
		StoredInMemory: stored,
	})
}

// stream writes the answer as newline-delimited JSON chunks, flushing after
// each one so the client sees text as it is generated.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, input service.AnswerInput) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)

	var answer string
	source := domain.SourceGeneralKnowledge
	completed := false

	for chunk := range h.svc.StreamAnswer(r.Context(), input) {
		if chunk.Metadata != nil {
			source = resolveSource(chunk.Metadata)
		}
		if chunk.Text != "" && !chunk.Terminal() {
			answer += chunk.Text
		}
		if chunk.Done {
			completed = true
		}

		if err := encoder.Encode(chunk); err != nil {
			log.Printf("client disconnected mid-stream: %v", err)
			return
		}
		flusher.Flush()
	}

	if completed {
		if err := h.svc.StoreConversation(r.Context(), input.Question, answer, source); err != nil {
			log.Printf("failed to store conversation: %v", err)
		}
	}
}

func resolveSource(meta *domain.StreamMetadata) domain.AnswerSource {
	switch {
	case meta.ContextUsed:
		return domain.SourceStudyMaterial
	case meta.WebSearchUsed:
		return domain.SourceWebSearch
	default:
		return domain.SourceGeneralKnowledge
	}
}
