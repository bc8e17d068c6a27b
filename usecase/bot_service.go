package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/domain/repositories"
)

// ErrAdminPassMismatch is returned when an admin pass does not match the
// bot's stored pass.
var ErrAdminPassMismatch = errors.New("admin pass mismatch")

// BotService carries bot and knowledge management operations on top of the
// bot repository.
type BotService struct {
	repo   repositories.BotRepository
	logger *zap.Logger
}

// NewBotService creates a new bot service.
func NewBotService(repo repositories.BotRepository, logger *zap.Logger) *BotService {
	return &BotService{repo: repo, logger: logger}
}

// CreateBot creates a bot with a generated id and admin pass. Empty fields
// fall back to defaults.
func (s *BotService) CreateBot(ctx context.Context, name, welcomeMessage string) (*entities.Bot, error) {
	bot := entities.NewBot(name, welcomeMessage)
	if err := s.repo.Create(ctx, bot); err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	s.logger.Info("bot created", zap.String("botId", bot.ID), zap.String("name", bot.Name))
	return bot, nil
}

// GetBot returns a bot by id, including its knowledge.
func (s *BotService) GetBot(ctx context.Context, id string) (*entities.Bot, error) {
	return s.repo.GetByID(ctx, id)
}

// ListBots returns all bots sorted by updated_at descending, without their
// knowledge payloads.
func (s *BotService) ListBots(ctx context.Context) ([]*entities.Bot, error) {
	return s.repo.List(ctx)
}

// BotUpdate holds the updatable bot fields. Nil fields are left unchanged.
type BotUpdate struct {
	Name           *string
	WelcomeMessage *string
	ImageBase64    *string
	WavyColor      *string
}

// UpdateBot applies a partial update. The id, creation timestamp, admin pass
// and knowledge are never touched here.
func (s *BotService) UpdateBot(ctx context.Context, id string, update BotUpdate) (*entities.Bot, error) {
	bot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil && strings.TrimSpace(*update.Name) != "" {
		bot.Name = strings.TrimSpace(*update.Name)
	}
	if update.WelcomeMessage != nil {
		bot.WelcomeMessage = *update.WelcomeMessage
	}
	if update.ImageBase64 != nil {
		bot.ImageBase64 = *update.ImageBase64
	}
	if update.WavyColor != nil {
		bot.WavyColor = *update.WavyColor
	}
	bot.Touch()

	if err := s.repo.Update(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

// DeleteBot deletes a bot by id.
func (s *BotService) DeleteBot(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("bot deleted", zap.String("botId", id))
	return nil
}

// VerifyAdminPass checks the given pass against the bot's stored admin pass.
// The comparison is constant time.
func (s *BotService) VerifyAdminPass(ctx context.Context, id, pass string) (*entities.Bot, error) {
	bot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(bot.AdminPass), []byte(pass)) != 1 {
		return nil, ErrAdminPassMismatch
	}
	return bot, nil
}

// AddKnowledgeTexts appends pasted fragments to a bot's knowledge.
func (s *BotService) AddKnowledgeTexts(ctx context.Context, id string, texts []string) (*entities.Bot, error) {
	return s.mutateKnowledge(ctx, id, func(k *entities.Knowledge) error {
		k.AddTexts(texts)
		return nil
	})
}

// AddKnowledgeFile appends pre-split fragments derived from a named source
// file and records the file's provenance.
func (s *BotService) AddKnowledgeFile(ctx context.Context, id, fileName string, texts []string) (*entities.Bot, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, errors.New("file name is required")
	}
	return s.mutateKnowledge(ctx, id, func(k *entities.Knowledge) error {
		k.AddFileTexts(fileName, texts)
		return nil
	})
}

// RemoveKnowledgeFile drops a file from the provenance list together with the
// fragments it contributed.
func (s *BotService) RemoveKnowledgeFile(ctx context.Context, id, fileName string) (*entities.Bot, error) {
	return s.mutateKnowledge(ctx, id, func(k *entities.Knowledge) error {
		k.RemoveFile(fileName)
		return nil
	})
}

// RemoveKnowledgeText removes the fragment at the given index.
func (s *BotService) RemoveKnowledgeText(ctx context.Context, id string, index int) (*entities.Bot, error) {
	return s.mutateKnowledge(ctx, id, func(k *entities.Knowledge) error {
		return k.RemoveText(index)
	})
}

func (s *BotService) mutateKnowledge(ctx context.Context, id string, mutate func(*entities.Knowledge) error) (*entities.Bot, error) {
	bot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(&bot.Knowledge); err != nil {
		return nil, err
	}
	bot.Touch()

	if err := s.repo.Update(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

// EmbedSnippet renders the HTML snippet a site owner pastes to embed the
// bot's widget. baseURL is the public origin of this server.
func EmbedSnippet(baseURL, botID string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	return fmt.Sprintf(
		`<iframe src="%s/widget/%s" style="position:fixed;bottom:20px;right:20px;width:400px;height:600px;border:none;z-index:9999;" allow="microphone"></iframe>`,
		baseURL, botID)
}
