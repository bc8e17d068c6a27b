package repositories

import (
	"context"

	"github.com/lordofthechatbot/server/domain/entities"
)

// ResponseGenerator abstracts the external LLM that produces assistant
// replies. Implementations assemble a prompt from the query, a short history
// window and the retrieved knowledge fragments, and must return all three
// reply fields or fail with a GenerationError.
type ResponseGenerator interface {
	Generate(ctx context.Context, query string, history []entities.Message, knowledge entities.Knowledge) (entities.GeneratedReply, error)
}
