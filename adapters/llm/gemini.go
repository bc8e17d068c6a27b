package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/domain/repositories"
	"github.com/lordofthechatbot/server/internal/retrieval"
)

const (
	defaultModel       = "gemini-2.5-flash"
	defaultTemperature = 0.5
	maxAttempts        = 3

	// historyWindow is the number of trailing transcript messages included
	// in the prompt for short-term context.
	historyWindow = 4
)

const systemInstruction = `You are an intelligent and friendly voice assistant.
Your task is to answer user queries accurately, based on the provided context.
If the information is not available in the context, politely state that you do not have the information.
Maintain a professional and helpful tone.
Always provide an answer, a spoken summary, and three suggested questions in the required JSON format.`

const noContextFallback = "I couldn't find direct information in the knowledge base, but try to answer in a general, helpful way."

// responseSchema constrains the model to the three-field structured reply.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"answer": {
			Type:        genai.TypeString,
			Description: "A detailed, helpful, and friendly answer to the user's question. Base the answer on the provided context.",
		},
		"spoken_summary": {
			Type:        genai.TypeString,
			Description: "A concise, single-sentence summary of the answer, suitable for text-to-speech. Should be less than 200 characters.",
		},
		"suggested_questions": {
			Type:        genai.TypeArray,
			Description: "Three relevant follow-up questions that the user might ask.",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"answer", "spoken_summary", "suggested_questions"},
}

// GeminiGenerator implements repositories.ResponseGenerator using Google's
// Gemini API with structured JSON output.
type GeminiGenerator struct {
	client *genai.Client
	logger *zap.Logger
	model  string
}

// NewGeminiGenerator creates a generator from the GEMINI_API_KEY and
// GEMINI_MODEL environment variables. A missing key is a ConfigurationError
// so the operator knows to configure access rather than retry.
func NewGeminiGenerator(logger *zap.Logger) (*GeminiGenerator, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, &repositories.ConfigurationError{
			Message: "GEMINI_API_KEY environment variable is required",
		}
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = defaultModel
	}

	return &GeminiGenerator{
		client: client,
		logger: logger,
		model:  model,
	}, nil
}

// Generate assembles the retrieval context, a short history window and the
// current query, and requests a structured reply.
func (g *GeminiGenerator) Generate(ctx context.Context, query string, history []entities.Message, knowledge entities.Knowledge) (entities.GeneratedReply, error) {
	prompt := buildPrompt(query, history, knowledge)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema,
		Temperature:       genai.Ptr(float32(defaultTemperature)),
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}
		g.logger.Warn("failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return entities.GeneratedReply{}, repositories.NewGenerationError(ctx.Err().Error())
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return entities.GeneratedReply{}, repositories.NewGenerationError(err.Error())
	}

	text := responseText(response)
	if text == "" {
		return entities.GeneratedReply{}, repositories.NewGenerationError("empty response")
	}

	var reply entities.GeneratedReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &reply); err != nil {
		g.logger.Error("failed to parse structured response", zap.Error(err))
		return entities.GeneratedReply{}, repositories.NewGenerationError("invalid response structure")
	}
	if reply.Answer == "" || reply.SpokenSummary == "" || reply.SuggestedQuestions == nil {
		g.logger.Error("incomplete structured response",
			zap.String("response", text))
		return entities.GeneratedReply{}, repositories.NewGenerationError("invalid response structure")
	}

	return reply, nil
}

// buildPrompt renders the retrieval context, the last few transcript turns
// and the current question into a single prompt block.
func buildPrompt(query string, history []entities.Message, knowledge entities.Knowledge) string {
	fragments := retrieval.TopFragments(query, knowledge, retrieval.DefaultFragmentCount)

	contextBlock := noContextFallback
	if len(fragments) > 0 {
		contextBlock = fmt.Sprintf(
			"Use the following information from the knowledge base to answer the question:\n\n---\n%s\n---",
			strings.Join(fragments, "\n---\n"))
	}

	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Speaker, m.Content()))
	}

	return fmt.Sprintf("%s\n\nRecent conversation history:\n%s\n\nCurrent user question: %q",
		contextBlock, strings.Join(lines, "\n"), query)
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text
}
