package entities

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fragment is one retrievable unit of knowledge. Source names the file that
// contributed it; pasted fragments have an empty Source.
type Fragment struct {
	Text   string `json:"text" bson:"text"`
	Source string `json:"source,omitempty" bson:"source,omitempty"`
}

// Knowledge is a bot's retrievable corpus: independent text fragments plus
// the names of the source files that contributed them. Fragments do not
// reference each other.
type Knowledge struct {
	Texts []Fragment `json:"texts" bson:"texts"`
	Files []string   `json:"files" bson:"files"`
}

// NewKnowledge returns an empty knowledge base.
func NewKnowledge() Knowledge {
	return Knowledge{
		Texts: make([]Fragment, 0),
		Files: make([]string, 0),
	}
}

// AddTexts appends non-empty pasted fragments, trimming whitespace. Empty
// fragments are dropped.
func (k *Knowledge) AddTexts(texts []string) {
	k.addFragments("", texts)
}

// AddFileTexts appends fragments derived from a named source file and records
// the file name for display and later removal.
func (k *Knowledge) AddFileTexts(fileName string, texts []string) {
	k.addFragments(fileName, texts)
	for _, f := range k.Files {
		if f == fileName {
			return
		}
	}
	k.Files = append(k.Files, fileName)
}

func (k *Knowledge) addFragments(source string, texts []string) {
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k.Texts = append(k.Texts, Fragment{Text: t, Source: source})
	}
}

// RemoveFile drops a file from the provenance list along with every fragment
// it contributed. Pasted fragments are untouched.
func (k *Knowledge) RemoveFile(fileName string) {
	if fileName == "" {
		return
	}
	files := k.Files[:0]
	for _, f := range k.Files {
		if f != fileName {
			files = append(files, f)
		}
	}
	k.Files = files

	texts := k.Texts[:0]
	for _, fr := range k.Texts {
		if fr.Source != fileName {
			texts = append(texts, fr)
		}
	}
	k.Texts = texts
}

// RemoveText removes the fragment at the given index.
func (k *Knowledge) RemoveText(index int) error {
	if index < 0 || index >= len(k.Texts) {
		return errors.New("fragment index out of range")
	}
	k.Texts = append(k.Texts[:index], k.Texts[index+1:]...)
	return nil
}

// IsEmpty reports whether the knowledge base has no fragments.
func (k *Knowledge) IsEmpty() bool {
	return len(k.Texts) == 0
}

// Bot is the configuration identity for one assistant.
type Bot struct {
	ID             string    `json:"id" bson:"_id"`
	Name           string    `json:"name" bson:"name"`
	WelcomeMessage string    `json:"welcome_message" bson:"welcome_message"`
	AdminPass      string    `json:"admin_pass,omitempty" bson:"admin_pass"`
	ImageBase64    string    `json:"image_base64,omitempty" bson:"image_base64,omitempty"`
	WavyColor      string    `json:"wavy_color,omitempty" bson:"wavy_color,omitempty"`
	Knowledge      Knowledge `json:"knowledge" bson:"knowledge"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

const adminPassAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewBot creates a bot with a generated id and admin password. Empty name and
// welcome message fall back to defaults.
func NewBot(name, welcomeMessage string) *Bot {
	if name == "" {
		name = "New Bot"
	}
	if welcomeMessage == "" {
		welcomeMessage = "Hello!"
	}
	now := time.Now()
	return &Bot{
		ID:             uuid.New().String(),
		Name:           name,
		WelcomeMessage: welcomeMessage,
		AdminPass:      generateAdminPass(),
		Knowledge:      NewKnowledge(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// generateAdminPass returns a short uppercase alphanumeric password. It is an
// access code for the bot's admin panel, not a user credential.
func generateAdminPass() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = adminPassAlphabet[rand.Intn(len(adminPassAlphabet))]
	}
	return string(b)
}

// Touch refreshes the updated_at timestamp. Call on every mutation to name,
// welcome message, appearance, or knowledge.
func (b *Bot) Touch() {
	b.UpdatedAt = time.Now()
}

// WithoutKnowledge returns a copy stripped of the knowledge payload, for
// listings where the corpus would bloat the response.
func (b *Bot) WithoutKnowledge() *Bot {
	c := *b
	c.Knowledge = NewKnowledge()
	return &c
}

// Validate validates the bot data.
func (b *Bot) Validate() error {
	if b.ID == "" {
		return errors.New("bot id is required")
	}
	if b.Name == "" {
		return errors.New("bot name is required")
	}
	return nil
}
