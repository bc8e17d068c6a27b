package adapters

import (
	"context"
	"sort"
	"sync"

	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/domain/repositories"
)

// MemoryBotRepository is an in-memory implementation of BotRepository,
// suitable as a simple storage backend for single-node deployments and for
// tests.
type MemoryBotRepository struct {
	mu   sync.RWMutex
	bots map[string]*entities.Bot
}

// NewMemoryBotRepository creates a new in-memory bot repository.
func NewMemoryBotRepository() *MemoryBotRepository {
	return &MemoryBotRepository{
		bots: make(map[string]*entities.Bot),
	}
}

// Create implements BotRepository.
func (m *MemoryBotRepository) Create(ctx context.Context, bot *entities.Bot) error {
	if bot == nil {
		return repositories.ErrBotNotFound
	}
	if err := bot.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	botCopy := *bot
	m.bots[bot.ID] = &botCopy
	return nil
}

// GetByID implements BotRepository.
func (m *MemoryBotRepository) GetByID(ctx context.Context, id string) (*entities.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bot, exists := m.bots[id]
	if !exists {
		return nil, repositories.ErrBotNotFound
	}

	// Return a copy to prevent external modifications.
	botCopy := *bot
	return &botCopy, nil
}

// List implements BotRepository: bots sorted by updated_at descending, with
// knowledge stripped.
func (m *MemoryBotRepository) List(ctx context.Context) ([]*entities.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bots := make([]*entities.Bot, 0, len(m.bots))
	for _, bot := range m.bots {
		bots = append(bots, bot.WithoutKnowledge())
	}
	sort.Slice(bots, func(a, b int) bool {
		return bots[a].UpdatedAt.After(bots[b].UpdatedAt)
	})
	return bots, nil
}

// Update implements BotRepository.
func (m *MemoryBotRepository) Update(ctx context.Context, bot *entities.Bot) error {
	if bot == nil {
		return repositories.ErrBotNotFound
	}
	if err := bot.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bots[bot.ID]; !exists {
		return repositories.ErrBotNotFound
	}
	botCopy := *bot
	m.bots[bot.ID] = &botCopy
	return nil
}

// Delete implements BotRepository.
func (m *MemoryBotRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bots[id]; !exists {
		return repositories.ErrBotNotFound
	}
	delete(m.bots, id)
	return nil
}
