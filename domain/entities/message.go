package entities

import "errors"

// Speaker identifies who produced a message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one turn in a conversation. A user message carries only Text.
// An assistant message carries TextParts, SpokenSummary and
// SuggestedQuestions instead. Messages are immutable once appended to a
// transcript.
type Message struct {
	Speaker Speaker `json:"speaker" bson:"speaker"`

	Text string `json:"text,omitempty" bson:"text,omitempty"`

	TextParts          []string `json:"text_parts,omitempty" bson:"text_parts,omitempty"`
	SpokenSummary      string   `json:"spoken_summary,omitempty" bson:"spoken_summary,omitempty"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty" bson:"suggested_questions,omitempty"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(text string) Message {
	return Message{
		Speaker: SpeakerUser,
		Text:    text,
	}
}

// NewAssistantMessage creates an assistant turn.
func NewAssistantMessage(textParts []string, spokenSummary string, suggestedQuestions []string) Message {
	return Message{
		Speaker:            SpeakerAssistant,
		TextParts:          textParts,
		SpokenSummary:      spokenSummary,
		SuggestedQuestions: suggestedQuestions,
	}
}

// Content returns the displayable text of the message regardless of speaker,
// used when rendering history for the response generator.
func (m Message) Content() string {
	if m.Speaker == SpeakerUser {
		return m.Text
	}
	var joined string
	for i, p := range m.TextParts {
		if i > 0 {
			joined += " "
		}
		joined += p
	}
	return joined
}

// Validate enforces that exactly the field set matching the speaker is
// populated.
func (m Message) Validate() error {
	switch m.Speaker {
	case SpeakerUser:
		if m.Text == "" {
			return errors.New("user message requires text")
		}
		if len(m.TextParts) > 0 || m.SpokenSummary != "" || len(m.SuggestedQuestions) > 0 {
			return errors.New("user message must not carry assistant fields")
		}
	case SpeakerAssistant:
		if len(m.TextParts) == 0 {
			return errors.New("assistant message requires text parts")
		}
		if m.Text != "" {
			return errors.New("assistant message must not carry user text")
		}
	default:
		return errors.New("unknown speaker")
	}
	return nil
}

// GeneratedReply is the structured result of one response-generator call.
type GeneratedReply struct {
	Answer             string   `json:"answer"`
	SpokenSummary      string   `json:"spoken_summary"`
	SuggestedQuestions []string `json:"suggested_questions"`
}

// AsMessage converts a generated reply into an assistant message. The answer
// becomes the single text part; the UI pages through parts.
func (r GeneratedReply) AsMessage() Message {
	return NewAssistantMessage([]string{r.Answer}, r.SpokenSummary, r.SuggestedQuestions)
}
