package api

import (
	"time"

	"github.com/lordofthechatbot/server/domain/entities"
)

// CreateBotRequest is the payload for creating a bot.
type CreateBotRequest struct {
	Name           string `json:"name"`
	WelcomeMessage string `json:"welcome_message"`
}

// UpdateBotRequest is the payload for a partial bot update. Absent fields are
// left unchanged.
type UpdateBotRequest struct {
	Name           *string `json:"name,omitempty"`
	WelcomeMessage *string `json:"welcome_message,omitempty"`
	ImageBase64    *string `json:"image_base64,omitempty"`
	WavyColor      *string `json:"wavy_color,omitempty"`
}

// VerifyAdminRequest is the payload for exchanging an admin pass for a token.
type VerifyAdminRequest struct {
	AdminPass string `json:"admin_pass"`
}

// TokenResponse carries an issued admin token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	BotID     string    `json:"bot_id"`
}

// AddTextsRequest is the payload for appending pasted knowledge fragments.
type AddTextsRequest struct {
	Texts []string `json:"texts"`
}

// AddFileRequest is the payload for appending pre-split fragments from a
// named source file.
type AddFileRequest struct {
	FileName string   `json:"file_name"`
	Texts    []string `json:"texts"`
}

// EmbedResponse carries the embed snippet for a bot.
type EmbedResponse struct {
	Snippet string `json:"snippet"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BotResponse is a bot as exposed over the API. The admin pass is included
// only in the create response, where the creator must record it.
type BotResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	WelcomeMessage string             `json:"welcome_message"`
	AdminPass      string             `json:"admin_pass,omitempty"`
	ImageBase64    string             `json:"image_base64,omitempty"`
	WavyColor      string             `json:"wavy_color,omitempty"`
	Knowledge      entities.Knowledge `json:"knowledge"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func toBotResponse(bot *entities.Bot, includeAdminPass bool) BotResponse {
	resp := BotResponse{
		ID:             bot.ID,
		Name:           bot.Name,
		WelcomeMessage: bot.WelcomeMessage,
		ImageBase64:    bot.ImageBase64,
		WavyColor:      bot.WavyColor,
		Knowledge:      bot.Knowledge,
		CreatedAt:      bot.CreatedAt,
		UpdatedAt:      bot.UpdatedAt,
	}
	if includeAdminPass {
		resp.AdminPass = bot.AdminPass
	}
	return resp
}

func toBotResponses(bots []*entities.Bot) []BotResponse {
	responses := make([]BotResponse, 0, len(bots))
	for _, bot := range bots {
		responses = append(responses, toBotResponse(bot, false))
	}
	return responses
}
