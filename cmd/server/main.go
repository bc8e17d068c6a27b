package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/adapters"
	"github.com/lordofthechatbot/server/adapters/llm"
	mongodb "github.com/lordofthechatbot/server/adapters/mongo"
	"github.com/lordofthechatbot/server/adapters/stt"
	"github.com/lordofthechatbot/server/adapters/tts"
	"github.com/lordofthechatbot/server/domain/repositories"
	"github.com/lordofthechatbot/server/internal/api"
	"github.com/lordofthechatbot/server/internal/auth"
	"github.com/lordofthechatbot/server/internal/sessionstore"
	"github.com/lordofthechatbot/server/internal/websocket"
	"github.com/lordofthechatbot/server/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	botRepo, mongoClient := buildBotRepository(logger)
	generator := buildGenerator(logger)
	sessions := buildSessionStore(logger)
	transcriber := buildTranscriber(logger)
	speech := buildTextToSpeech(logger)

	signer, err := auth.NewSignerFromEnv()
	if err != nil {
		logger.Fatal("jwt configuration invalid", zap.Error(err))
	}

	hub := websocket.NewHub(botRepo, generator, transcriber, speech, sessions, logger)
	go hub.Run()

	cleanup := websocket.NewSessionCleanupService(hub, logger)
	cleanup.Start()

	baseURL := os.Getenv("PUBLIC_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	botService := usecase.NewBotService(botRepo, logger)
	server := api.NewServer(botService, signer, hub, baseURL, logger)
	server.RegisterRoutes(e)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("server is shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleanup.Stop()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	if err := sessions.Close(); err != nil {
		logger.Warn("failed to close session store", zap.Error(err))
	}
	if mongoClient != nil {
		if err := mongoClient.Close(ctx); err != nil {
			logger.Warn("failed to close mongo client", zap.Error(err))
		}
	}

	logger.Info("server exited")
}

// buildBotRepository selects the bot storage backend via BOT_STORAGE
// (memory|mongo). The mongo client is returned so main can close it.
func buildBotRepository(logger *zap.Logger) (repositories.BotRepository, *mongodb.Client) {
	switch os.Getenv("BOT_STORAGE") {
	case "mongo":
		client, err := mongodb.NewClient(logger)
		if err != nil {
			logger.Fatal("failed to connect to mongodb", zap.Error(err))
		}
		return mongodb.NewBotRepository(client.Database), client
	default:
		logger.Info("using in-memory bot storage")
		return adapters.NewMemoryBotRepository(), nil
	}
}

// buildGenerator prefers the Gemini generator and falls back to the mock
// when no API key is configured, so local development works offline.
func buildGenerator(logger *zap.Logger) repositories.ResponseGenerator {
	generator, err := llm.NewGeminiGenerator(logger)
	if err != nil {
		logger.Warn("gemini generator unavailable, using mock", zap.Error(err))
		return llm.NewMockGenerator()
	}
	return generator
}

// buildSessionStore selects the transcript store via SESSION_STORE
// (memory|redis).
func buildSessionStore(logger *zap.Logger) sessionstore.Store {
	if os.Getenv("SESSION_STORE") != "redis" {
		store, _ := sessionstore.NewStore(sessionstore.StoreTypeMemory)
		return store
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	store, err := sessionstore.NewStore(sessionstore.StoreTypeRedis,
		sessionstore.WithRedisClient(client))
	if err != nil {
		logger.Fatal("failed to create redis session store", zap.Error(err))
	}
	logger.Info("using redis session store", zap.String("addr", addr))
	return store
}

// buildTranscriber enables the server-side speech-to-text path when Google
// credentials are configured. Without it widgets transcribe locally.
func buildTranscriber(logger *zap.Logger) repositories.AudioTranscriber {
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		logger.Info("server-side transcription disabled")
		return nil
	}
	return stt.NewGoogleTranscriber()
}

// buildTextToSpeech enables server-side audio synthesis when an ElevenLabs
// key is configured. Without it widgets synthesize locally.
func buildTextToSpeech(logger *zap.Logger) repositories.TextToSpeech {
	config := tts.NewElevenLabsConfigFromEnv()
	engine, err := tts.NewElevenLabsTTS(config, logger)
	if err != nil {
		logger.Info("server-side speech synthesis disabled", zap.Error(err))
		return nil
	}
	return engine
}
