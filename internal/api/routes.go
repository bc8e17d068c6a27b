// Package api registers the HTTP surface: bot management, knowledge
// management, admin token exchange, the embed snippet, and the widget
// websocket.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/domain/repositories"
	"github.com/lordofthechatbot/server/internal/auth"
	"github.com/lordofthechatbot/server/internal/websocket"
	"github.com/lordofthechatbot/server/usecase"
)

// Server wires the HTTP handlers to their dependencies.
type Server struct {
	bots    *usecase.BotService
	signer  *auth.Signer
	hub     *websocket.Hub
	baseURL string
	logger  *zap.Logger
}

// NewServer creates the API server. baseURL is the public origin used in
// embed snippets.
func NewServer(bots *usecase.BotService, signer *auth.Signer, hub *websocket.Hub, baseURL string, logger *zap.Logger) *Server {
	return &Server{
		bots:    bots,
		signer:  signer,
		hub:     hub,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes initializes all API routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "chatbot-server",
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/bots", s.createBot)
	v1.GET("/bots", s.listBots)
	v1.GET("/bots/:id", s.getBot)
	v1.POST("/bots/:id/verify", s.verifyAdmin)
	v1.GET("/bots/:id/embed", s.embedSnippet)

	v1.PUT("/bots/:id", s.adminOnly(s.updateBot))
	v1.DELETE("/bots/:id", s.adminOnly(s.deleteBot))
	v1.POST("/bots/:id/knowledge/texts", s.adminOnly(s.addKnowledgeTexts))
	v1.POST("/bots/:id/knowledge/files", s.adminOnly(s.addKnowledgeFile))
	v1.DELETE("/bots/:id/knowledge/files/:file", s.adminOnly(s.removeKnowledgeFile))
	v1.DELETE("/bots/:id/knowledge/texts/:index", s.adminOnly(s.removeKnowledgeText))

	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(s.hub, c, s.logger)
	})
}

// adminOnly requires a bearer token whose claims are scoped to the bot in the
// route. A token for one bot grants nothing on another.
func (s *Server) adminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token := ""
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "Admin token is required in Authorization header",
			})
		}

		claims, err := s.signer.ValidateToken(token)
		if err != nil {
			s.logger.Warn("admin token rejected", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired admin token",
			})
		}
		if claims.BotID != c.Param("id") {
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "wrong_bot",
				Message: "Token is not valid for this bot",
			})
		}
		return next(c)
	}
}

func (s *Server) createBot(c echo.Context) error {
	var req CreateBotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}

	bot, err := s.bots.CreateBot(c.Request().Context(), req.Name, req.WelcomeMessage)
	if err != nil {
		s.logger.Error("failed to create bot", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "create_failed"})
	}
	// The admin pass is shown once, here.
	return c.JSON(http.StatusCreated, toBotResponse(bot, true))
}

func (s *Server) listBots(c echo.Context) error {
	bots, err := s.bots.ListBots(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list bots", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "list_failed"})
	}
	return c.JSON(http.StatusOK, toBotResponses(bots))
}

func (s *Server) getBot(c echo.Context) error {
	bot, err := s.bots.GetBot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.botError(c, err)
	}
	return c.JSON(http.StatusOK, toBotResponse(bot, false))
}

func (s *Server) verifyAdmin(c echo.Context) error {
	var req VerifyAdminRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}

	bot, err := s.bots.VerifyAdminPass(c.Request().Context(), c.Param("id"), req.AdminPass)
	if err != nil {
		if errors.Is(err, usecase.ErrAdminPassMismatch) {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "verification_failed",
				Message: "Admin pass is incorrect",
			})
		}
		return s.botError(c, err)
	}

	token, err := s.signer.GenerateAdminToken(bot.ID)
	if err != nil {
		s.logger.Error("failed to generate admin token", zap.String("botId", bot.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "token_generation_failed"})
	}

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		BotID:     bot.ID,
	})
}

func (s *Server) updateBot(c echo.Context) error {
	var req UpdateBotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}

	bot, err := s.bots.UpdateBot(c.Request().Context(), c.Param("id"), usecase.BotUpdate{
		Name:           req.Name,
		WelcomeMessage: req.WelcomeMessage,
		ImageBase64:    req.ImageBase64,
		WavyColor:      req.WavyColor,
	})
	if err != nil {
		return s.botError(c, err)
	}
	return c.JSON(http.StatusOK, toBotResponse(bot, false))
}

func (s *Server) deleteBot(c echo.Context) error {
	if err := s.bots.DeleteBot(c.Request().Context(), c.Param("id")); err != nil {
		return s.botError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) addKnowledgeTexts(c echo.Context) error {
	var req AddTextsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}

	bot, err := s.bots.AddKnowledgeTexts(c.Request().Context(), c.Param("id"), req.Texts)
	if err != nil {
		return s.botError(c, err)
	}
	return c.JSON(http.StatusOK, toBotResponse(bot, false))
}

func (s *Server) addKnowledgeFile(c echo.Context) error {
	var req AddFileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}
	if strings.TrimSpace(req.FileName) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "file_name is required",
		})
	}

	bot, err := s.bots.AddKnowledgeFile(c.Request().Context(), c.Param("id"), req.FileName, req.Texts)
	if err != nil {
		return s.botError(c, err)
	}
	return c.JSON(http.StatusOK, toBotResponse(bot, false))
}

func (s *Server) removeKnowledgeFile(c echo.Context) error {
	bot, err := s.bots.RemoveKnowledgeFile(c.Request().Context(), c.Param("id"), c.Param("file"))
	if err != nil {
		return s.botError(c, err)
	}
	return c.JSON(http.StatusOK, toBotResponse(bot, false))
}

func (s *Server) removeKnowledgeText(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "fragment index must be an integer",
		})
	}

	bot, err := s.bots.RemoveKnowledgeText(c.Request().Context(), c.Param("id"), index)
	if err != nil {
		if errors.Is(err, repositories.ErrBotNotFound) {
			return s.botError(c, err)
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, toBotResponse(bot, false))
}

func (s *Server) embedSnippet(c echo.Context) error {
	bot, err := s.bots.GetBot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.botError(c, err)
	}
	return c.JSON(http.StatusOK, EmbedResponse{
		Snippet: usecase.EmbedSnippet(s.baseURL, bot.ID),
	})
}

func (s *Server) botError(c echo.Context, err error) error {
	if errors.Is(err, repositories.ErrBotNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Bot not found",
		})
	}
	s.logger.Error("bot operation failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
}
