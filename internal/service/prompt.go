package service

import (
	"fmt"

	"github.com/studybuddy-ai/backend/internal/anthropic"
	"github.com/studybuddy-ai/backend/internal/domain"
)

// maxHistoryTurns caps how much prior conversation is replayed to the model.
// Older turns are dropped, not summarized.
const maxHistoryTurns = 5

const studyMaterialPromptFormat = `You are an intelligent study assistant.
A user has uploaded study materials and is asking questions about them.

Here is the relevant study material from their documents:
<study_material>
%s
</study_material>

IMPORTANT INSTRUCTIONS:
1. First, check if the study material contains relevant information for the user's question.
2. If YES: Prioritize using the study material to answer the question. You may supplement with additional knowledge if needed.
3. If NO: Acknowledge that the material doesn't cover this topic, then provide information from your general knowledge.
4. Always be clear about whether you're using the uploaded material or general knowledge.
5. Be concise, educational, and adapt explanations to the user's understanding level.`

const webSearchPromptFormat = `You are an intelligent study assistant.
The user asked about a topic NOT covered in their uploaded study materials.
You have searched the web and found relevant information below.

IMPORTANT:
- First acknowledge that this information was NOT in the uploaded material
- Then explain the answer based on web search results
- Be clear that this is from web sources, not the uploaded material

Web search results:
<web_results>
%s
</web_results>

Provide a clear, educational response that acknowledges the material gap.`

const generalKnowledgePrompt = `You are an AI Study Buddy, a helpful educational assistant.
You help students understand concepts, answer questions about their study materials, and provide explanations in a clear and engaging way.
Be supportive, patient, and adapt your explanations to the user's understanding level.
When answering, provide accurate, concise, and educational responses.`

// BuildPrompt assembles the system prompt and message sequence for a resolved
// answer. The template is selected strictly by source, with the effective
// context embedded verbatim; the claimed source can therefore never diverge
// from what the model actually sees. Deterministic, no side effects.
func BuildPrompt(question string, history []domain.Turn, source domain.AnswerSource, effectiveContext string) (string, []anthropic.Message) {
	var system string
	switch source {
	case domain.SourceStudyMaterial:
		system = fmt.Sprintf(studyMaterialPromptFormat, effectiveContext)
	case domain.SourceWebSearch:
		system = fmt.Sprintf(webSearchPromptFormat, effectiveContext)
	default:
		system = generalKnowledgePrompt
	}

	turns := history
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}

	messages := make([]anthropic.Message, 0, len(turns)+1)
	for _, turn := range turns {
		messages = append(messages, anthropic.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, anthropic.Message{Role: domain.RoleUser, Content: question})

	return system, messages
}
