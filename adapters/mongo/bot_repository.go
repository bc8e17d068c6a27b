package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/domain/repositories"
)

type BotRepository struct {
	collection *mongo.Collection
}

// NewBotRepository creates a new MongoDB bot repository.
func NewBotRepository(db *mongo.Database) repositories.BotRepository {
	return &BotRepository{
		collection: db.Collection("bots"),
	}
}

// Create implements repositories.BotRepository.
func (r *BotRepository) Create(ctx context.Context, bot *entities.Bot) error {
	if bot == nil {
		return errors.New("bot cannot be nil")
	}
	if err := bot.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, bot); err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	return nil
}

// GetByID implements repositories.BotRepository.
func (r *BotRepository) GetByID(ctx context.Context, id string) (*entities.Bot, error) {
	if id == "" {
		return nil, errors.New("bot ID cannot be empty")
	}

	var bot entities.Bot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&bot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrBotNotFound
		}
		return nil, fmt.Errorf("failed to get bot %s: %w", id, err)
	}
	return &bot, nil
}

// List implements repositories.BotRepository. Knowledge payloads are
// projected out and results are sorted by updated_at descending.
func (r *BotRepository) List(ctx context.Context) ([]*entities.Bot, error) {
	opts := options.Find().
		SetSort(bson.M{"updated_at": -1}).
		SetProjection(bson.M{"knowledge": 0})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	defer cursor.Close(ctx)

	bots := make([]*entities.Bot, 0)
	for cursor.Next(ctx) {
		var bot entities.Bot
		if err := cursor.Decode(&bot); err != nil {
			return nil, fmt.Errorf("failed to decode bot: %w", err)
		}
		bots = append(bots, &bot)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bots: %w", err)
	}
	return bots, nil
}

// Update implements repositories.BotRepository.
func (r *BotRepository) Update(ctx context.Context, bot *entities.Bot) error {
	if bot == nil {
		return errors.New("bot cannot be nil")
	}
	if bot.ID == "" {
		return errors.New("bot ID cannot be empty")
	}

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": bot.ID}, bot)
	if err != nil {
		return fmt.Errorf("failed to update bot: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrBotNotFound
	}
	return nil
}

// Delete implements repositories.BotRepository.
func (r *BotRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("bot ID cannot be empty")
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrBotNotFound
	}
	return nil
}
