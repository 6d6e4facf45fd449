package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/studybuddy-ai/backend/internal/anthropic"
	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/studybuddy-ai/backend/internal/supermemory"
	"github.com/studybuddy-ai/backend/internal/telemetry"
)

// apologyText is the fixed soft-failure response. The user always receives
// either a complete answer or this string, never a raw error.
const apologyText = "I encountered an issue processing your question. Please try again."

const retrievalLimit = 5

// Retriever is the hosted retrieval-index boundary. Satisfied by
// supermemory.Client.
type Retriever interface {
	Search(ctx context.Context, query, containerTag string, limit int) ([]supermemory.SearchResult, error)
	IngestDocument(ctx context.Context, input supermemory.IngestInput) (*supermemory.IngestResult, error)
}

// ChatService orchestrates answering a question: resolve the information
// source, build the attributed prompt, call the model, and report which
// source was used.
type ChatService struct {
	llm       LLMClient
	resolver  *SourceResolver
	retriever Retriever
	now       func() time.Time
}

// NewChatService creates a ChatService. retriever may be nil, in which case
// context retrieval and conversation storage are disabled.
func NewChatService(llm LLMClient, resolver *SourceResolver, retriever Retriever) *ChatService {
	return &ChatService{
		llm:       llm,
		resolver:  resolver,
		retriever: retriever,
		now:       time.Now,
	}
}

// AnswerInput is one question with its optional conversation history and
// pre-retrieved context.
type AnswerInput struct {
	Question         string
	History          []domain.Turn
	RetrievedContext string
}

// AnswerResult is a completed non-streaming answer with its resolved source.
type AnswerResult struct {
	Text   string
	Source domain.AnswerSource
}

// RetrieveContext queries the retrieval index for context relevant to the
// question. Best-effort: any failure yields "no usable context" rather than an
// error, since the answer pipeline degrades gracefully without it. When fileID
// is set, only snippets from that uploaded document are kept.
func (s *ChatService) RetrieveContext(ctx context.Context, question, fileID string) string {
	if s.retriever == nil {
		return ""
	}

	results, err := s.retriever.Search(ctx, question, supermemory.ContainerUploadedDocuments, retrievalLimit)
	if err != nil {
		log.Printf("context retrieval failed: %v", err)
		return ""
	}

	if fileID != "" {
		filtered := results[:0]
		for _, r := range results {
			if id, ok := r.Metadata["file_id"].(string); ok && id == fileID {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	return supermemory.JoinContext(results)
}

// Answer produces a complete answer for the question. A model failure is a
// soft failure: the caller receives the fixed apology text attributed to no
// source, never an error.
func (s *ChatService) Answer(ctx context.Context, input AnswerInput) AnswerResult {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.Answer", telemetry.SpanAttributes{
		Operation: "answer",
	})
	defer span.End()

	resolution := s.resolver.Resolve(ctx, input.Question, input.RetrievedContext)
	system, messages := BuildPrompt(input.Question, input.History, resolution.Source, resolution.Context)

	text, err := s.llm.Complete(ctx, anthropic.CompleteInput{
		System:   system,
		Messages: messages,
	})
	if err != nil {
		log.Printf("model call failed, returning apology: %v", err)
		span.SetError(err)
		return AnswerResult{Text: apologyText, Source: domain.SourceGeneralKnowledge}
	}

	return AnswerResult{Text: text, Source: resolution.Source}
}

// StreamAnswer produces the answer as an ordered chunk stream: one metadata
// chunk carrying the resolved source flags, zero or more text chunks in
// generation order, then one terminal chunk. A mid-stream failure yields a
// single error-flavored terminal chunk; the channel is closed on every exit
// path, and cancelling ctx stops the producer at the next chunk boundary.
func (s *ChatService) StreamAnswer(ctx context.Context, input AnswerInput) <-chan domain.StreamChunk {
	out := make(chan domain.StreamChunk, 32)

	go func() {
		defer close(out)

		send := func(chunk domain.StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resolution := s.resolver.Resolve(ctx, input.Question, input.RetrievedContext)
		system, messages := BuildPrompt(input.Question, input.History, resolution.Source, resolution.Context)

		if !send(domain.StreamChunk{Metadata: &domain.StreamMetadata{
			ContextUsed:   resolution.Source.ContextUsed(),
			WebSearchUsed: resolution.Source.WebSearchUsed(),
		}}) {
			return
		}

		fragments, err := s.llm.StreamComplete(ctx, anthropic.CompleteInput{
			System:   system,
			Messages: messages,
		})
		if err != nil {
			log.Printf("streaming model call failed: %v", err)
			send(domain.StreamChunk{Error: err.Error(), Text: apologyText})
			return
		}

		for fragment := range fragments {
			if fragment.Err != nil {
				log.Printf("stream failed mid-answer: %v", fragment.Err)
				send(domain.StreamChunk{Error: fragment.Err.Error(), Text: apologyText})
				return
			}
			if fragment.Done {
				send(domain.StreamChunk{Done: true})
				return
			}
			if !send(domain.StreamChunk{Text: fragment.Text}) {
				return
			}
		}

		// Fragment channel closed without a terminal fragment.
		send(domain.StreamChunk{Error: "stream ended unexpectedly", Text: apologyText})
	}()

	return out
}

// StoreConversation writes the question and final answer into the retrieval
// index as one conversation record tagged with the resolved source flags.
// Best-effort by contract: callers log failures and never let them affect the
// response already delivered.
func (s *ChatService) StoreConversation(ctx context.Context, question, answer string, source domain.AnswerSource) error {
	if s.retriever == nil {
		return nil
	}
	if strings.TrimSpace(answer) == "" {
		return nil
	}

	timestamp := s.now().UTC()
	_, err := s.retriever.IngestDocument(ctx, supermemory.IngestInput{
		Content:      fmt.Sprintf("Q: %s\nA: %s", question, answer),
		Filename:     fmt.Sprintf("conversation-%d", timestamp.Unix()),
		ContainerTag: supermemory.ContainerConversations,
		Metadata: map[string]any{
			"type":            "conversation",
			"context_used":    source.ContextUsed(),
			"web_search_used": source.WebSearchUsed(),
			"timestamp":       timestamp.Format(time.RFC3339),
		},
	})
	return err
}
