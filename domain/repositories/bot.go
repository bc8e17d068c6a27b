package repositories

import (
	"context"

	"github.com/lordofthechatbot/server/domain/entities"
)

// BotRepository defines data access methods for bots and their knowledge.
type BotRepository interface {
	Create(ctx context.Context, bot *entities.Bot) error
	GetByID(ctx context.Context, id string) (*entities.Bot, error)
	// List returns all bots sorted by updated_at descending, with knowledge
	// payloads stripped.
	List(ctx context.Context) ([]*entities.Bot, error)
	Update(ctx context.Context, bot *entities.Bot) error
	Delete(ctx context.Context, id string) error
}
