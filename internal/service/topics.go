package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/studybuddy-ai/backend/internal/anthropic"
	"github.com/studybuddy-ai/backend/internal/supermemory"
)

const (
	topicsMaxTokens   = 4000
	topicsTemperature = 0.3

	extractionSystemPrompt = "You are an expert educational content analyzer. Your task is to extract and organize topics from study materials in the most logical learning order. You MUST output a JSON object only, enclosed in ```json ... ```."
)

// topicSchemaJSON guides the model's output format: an ordered study path of
// main topics with subtopics.
const topicSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id": {"type": "integer", "description": "Unique, sequential ID for the topic, starting at 1."},
      "title": {"type": "string", "description": "The main topic title."},
      "description": {"type": "string", "description": "A brief description explaining why this topic is important and should be learned in this order."},
      "subtopics": {
        "type": "array",
        "description": "A list of key subtopics or concepts under this main topic.",
        "items": {
          "type": "object",
          "properties": {
            "id": {"type": "integer", "description": "Unique, sequential ID for the subtopic within the main topic."},
            "title": {"type": "string", "description": "The subtopic or concept name."}
          },
          "required": ["id", "title"]
        }
      }
    },
    "required": ["id", "title", "description", "subtopics"]
  }
}`

// TopicService extracts an ordered study path from document text, optionally
// grounded by retrieval context.
type TopicService struct {
	llm       LLMClient
	retriever Retriever
}

// NewTopicService creates a TopicService. retriever may be nil; then only
// direct-text extraction is available.
func NewTopicService(llm LLMClient, retriever Retriever) *TopicService {
	return &TopicService{llm: llm, retriever: retriever}
}

// ExtractTopics analyzes the document text directly and returns the model's
// JSON study path (as text, inside a ```json block).
func (s *TopicService) ExtractTopics(ctx context.Context, documentText string) (string, error) {
	return s.extract(ctx, buildExtractionPrompt(documentText, ""))
}

// ExtractTopicsWithRAG grounds extraction on retrieval context instead of raw
// document text. Errors propagate so the caller can fall back to
// ExtractTopics while the document is still being indexed.
func (s *TopicService) ExtractTopicsWithRAG(ctx context.Context, query string) (string, error) {
	if s.retriever == nil {
		return "", fmt.Errorf("no retriever configured for RAG extraction")
	}

	results, err := s.retriever.Search(ctx, query, supermemory.ContainerUploadedDocuments, retrievalLimit)
	if err != nil {
		return "", fmt.Errorf("retrieving extraction context: %w", err)
	}
	contextText := supermemory.JoinContext(results)
	if contextText == "" {
		return "", fmt.Errorf("no retrieval context available yet")
	}

	return s.extract(ctx, buildExtractionPrompt("", contextText))
}

func (s *TopicService) extract(ctx context.Context, prompt string) (string, error) {
	temperature := topicsTemperature
	text, err := s.llm.Complete(ctx, anthropic.CompleteInput{
		System:      extractionSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		MaxTokens:   topicsMaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("extracting topics: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func buildExtractionPrompt(documentText, retrievalContext string) string {
	var parts []string
	if retrievalContext != "" {
		parts = append(parts, fmt.Sprintf(`Given this document and its context, extract a list of all main topics and subtopics in order of learning importance.

Context from document:
%s`, retrievalContext))
	}
	if documentText != "" {
		parts = append(parts, fmt.Sprintf(`
Document content:
%s`, documentText))
	}
	parts = append(parts, fmt.Sprintf(`
Your task is to analyze the material and create a comprehensive, organized study path.

Instructions:
1. List all **Main Topics** in the most logical learning order.
2. For each Main Topic, list relevant **Subtopics**.
3. Provide a **brief description** explaining the rationale for the learning order.
4. **STRICTLY** output the result as a single JSON array that conforms to this schema, enclosed in a `+"```json ... ```"+` block.

JSON Schema:
%s
`, topicSchemaJSON))
	return strings.Join(parts, "\n")
}
