package domain

// AnswerSource is the tagged origin of an answer's grounding. Exactly one
// source holds per completed answer, and it must match what was actually fed
// into the system prompt.
type AnswerSource string

const (
	// SourceStudyMaterial means retrieved study-material context was used.
	SourceStudyMaterial AnswerSource = "study_material"
	// SourceWebSearch means the web-search fallback supplied the context.
	SourceWebSearch AnswerSource = "web_search"
	// SourceGeneralKnowledge means the model answered without grounding.
	SourceGeneralKnowledge AnswerSource = "general_knowledge"
)

// ContextUsed reports whether retrieved study material grounded the answer.
func (s AnswerSource) ContextUsed() bool { return s == SourceStudyMaterial }

// WebSearchUsed reports whether web results grounded the answer.
func (s AnswerSource) WebSearchUsed() bool { return s == SourceWebSearch }

// Conversation turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamMetadata carries the resolved source flags for a streamed answer.
// It is emitted exactly once, before any text.
type StreamMetadata struct {
	ContextUsed   bool `json:"context_used"`
	WebSearchUsed bool `json:"web_search_used"`
}

// StreamChunk is one ordered unit of a streamed answer: a metadata chunk
// (first, exactly once), a text chunk (zero or more, in generation order), or
// a terminal chunk (last, exactly once; Done on success, Error on mid-stream
// failure). Its JSON encoding is one line of the newline-delimited response.
type StreamChunk struct {
	Metadata *StreamMetadata `json:"metadata,omitempty"`
	Text     string          `json:"text,omitempty"`
	Done     bool            `json:"done,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Terminal reports whether this chunk ends the stream.
func (c StreamChunk) Terminal() bool { return c.Done || c.Error != "" }
