package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/studybuddy-ai/backend/internal/anthropic"
)

// Decision policy constants. These are fixed policy, not tunables: the
// 50-character floor and the 0.5 score gate are the only boundary between
// "trust retrieval" and "escalate to web search or general knowledge".
const (
	// RelevanceThreshold is the minimum score at which retrieved context is
	// trusted. The boundary is inclusive.
	RelevanceThreshold = 0.5

	// MinContextLength is the trimmed length (in runes) a context must exceed
	// to be worth scoring at all.
	MinContextLength = 50

	// neutralRelevance is the fail-open default when scoring cannot produce a
	// usable number: treat the context as ambiguous and prefer it.
	neutralRelevance = 0.5

	scoreMaxTokens = 10
)

// LLMClient is the language-model boundary used by the answer pipeline.
type LLMClient interface {
	Complete(ctx context.Context, input anthropic.CompleteInput) (string, error)
	StreamComplete(ctx context.Context, input anthropic.CompleteInput) (<-chan anthropic.Fragment, error)
}

// RelevanceScorer rates how well a context passage answers a question.
type RelevanceScorer struct {
	llm LLMClient
}

// NewRelevanceScorer creates a RelevanceScorer.
func NewRelevanceScorer(llm LLMClient) *RelevanceScorer {
	return &RelevanceScorer{llm: llm}
}

// Score asks the model to rate context relevance and returns a value in
// [0.0, 1.0]. Callers must not invoke it with empty context. A transport
// failure or an unparseable reply never aborts the request: both fall open to
// the neutral 0.5.
func (s *RelevanceScorer) Score(ctx context.Context, question, context_ string) float64 {
	prompt := fmt.Sprintf(`Rate the relevance of this context to the question on a scale of 0 to 1.
Only output a single number between 0 and 1.

Question: %s

Context: %s`, question, context_)

	reply, err := s.llm.Complete(ctx, anthropic.CompleteInput{
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		MaxTokens: scoreMaxTokens,
	})
	if err != nil {
		log.Printf("relevance scoring failed, using neutral default: %v", err)
		return neutralRelevance
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return neutralRelevance
	}
	return math.Min(1.0, math.Max(0.0, score))
}
