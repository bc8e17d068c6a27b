package llm

import (
	"context"
	"fmt"

	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/internal/retrieval"
)

// MockGenerator is a placeholder generator for local development without a
// Gemini credential. It answers from the top retrieved fragment verbatim.
type MockGenerator struct{}

// NewMockGenerator creates a new mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate implements repositories.ResponseGenerator.
func (m *MockGenerator) Generate(ctx context.Context, query string, history []entities.Message, knowledge entities.Knowledge) (entities.GeneratedReply, error) {
	fragments := retrieval.TopFragments(query, knowledge, 1)

	answer := "I don't have that information in my knowledge base yet."
	if len(fragments) > 0 {
		answer = fmt.Sprintf("Here is what I know: %s", fragments[0])
	}

	return entities.GeneratedReply{
		Answer:        answer,
		SpokenSummary: answer,
		SuggestedQuestions: []string{
			"What else can you tell me?",
			"Where can I find more details?",
			"Who should I contact?",
		},
	}, nil
}
