package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/studybuddy-ai/backend/internal/domain"
)

// Scorer rates context relevance. Satisfied by RelevanceScorer.
type Scorer interface {
	Score(ctx context.Context, question, context string) float64
}

// WebSearchFunc searches the web and returns formatted result text. A failed
// or empty search is a normal outcome consumed by the resolver's branching,
// not an error surfaced to the user.
type WebSearchFunc func(ctx context.Context, query string) (string, error)

// StubWebSearch is a placeholder web-search implementation used when no real
// integration is configured.
func StubWebSearch(_ context.Context, query string) (string, error) {
	return fmt.Sprintf("Web search results for %q are unavailable: no search provider is configured.", query), nil
}

// Resolution pairs the resolved answer source with the exact context that
// will be embedded in the system prompt. The two never diverge.
type Resolution struct {
	Source  domain.AnswerSource
	Context string
}

// SourceResolver decides, per question, whether to answer from retrieved
// study-material context, fall back to a web search, or use general knowledge.
type SourceResolver struct {
	scorer    Scorer
	webSearch WebSearchFunc
}

// NewSourceResolver creates a SourceResolver. webSearch may be nil, in which
// case the web-search branch degrades directly to general knowledge.
func NewSourceResolver(scorer Scorer, webSearch WebSearchFunc) *SourceResolver {
	return &SourceResolver{scorer: scorer, webSearch: webSearch}
}

// Resolve applies the decision policy in order: a context longer than
// MinContextLength runes (trimmed) is scored and trusted at or above
// RelevanceThreshold; everything else escalates to web search, and a failed
// or empty web search degrades silently to general knowledge. A too-short
// context is treated identically to no context and is never scored.
func (r *SourceResolver) Resolve(ctx context.Context, question, retrievedContext string) Resolution {
	trimmed := strings.TrimSpace(retrievedContext)
	if utf8.RuneCountInString(trimmed) > MinContextLength {
		score := r.scorer.Score(ctx, question, retrievedContext)
		if score >= RelevanceThreshold {
			return Resolution{Source: domain.SourceStudyMaterial, Context: retrievedContext}
		}
		log.Printf("context relevance %.2f below threshold, falling back to web search", score)
	}
	return r.webFallback(ctx, question)
}

func (r *SourceResolver) webFallback(ctx context.Context, question string) Resolution {
	if r.webSearch == nil {
		return Resolution{Source: domain.SourceGeneralKnowledge}
	}

	results, err := r.webSearch(ctx, question)
	if err != nil {
		log.Printf("web search failed, answering from general knowledge: %v", err)
		return Resolution{Source: domain.SourceGeneralKnowledge}
	}
	if strings.TrimSpace(results) == "" {
		return Resolution{Source: domain.SourceGeneralKnowledge}
	}
	return Resolution{Source: domain.SourceWebSearch, Context: results}
}
