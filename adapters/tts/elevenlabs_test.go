package tts

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewElevenLabsTTSRequiresAPIKey(t *testing.T) {
	logger := zaptest.NewLogger(t)

	os.Unsetenv("ELEVEN_LABS_API_KEY")
	config := NewElevenLabsConfigFromEnv()
	if _, err := NewElevenLabsTTS(config, logger); err == nil {
		t.Error("expected error when API key is not set")
	}

	os.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")
	defer os.Unsetenv("ELEVEN_LABS_API_KEY")

	config = NewElevenLabsConfigFromEnv()
	tts, err := NewElevenLabsTTS(config, logger)
	if err != nil {
		t.Fatalf("failed to create ElevenLabsTTS: %v", err)
	}

	if tts.apiKey != "test-api-key" {
		t.Errorf("apiKey = %q", tts.apiKey)
	}
	if tts.voiceID != defaultVoiceID {
		t.Errorf("voiceID = %q, want default %q", tts.voiceID, defaultVoiceID)
	}
	if tts.outputFormat != defaultOutputFormat {
		t.Errorf("outputFormat = %q, want default %q", tts.outputFormat, defaultOutputFormat)
	}
}

func TestElevenLabsConfigFromEnvOverrides(t *testing.T) {
	os.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")
	os.Setenv("ELEVEN_LABS_VOICE_ID", "custom-voice")
	os.Setenv("ELEVEN_LABS_CHUNK_SIZE", "2048")
	os.Setenv("ELEVEN_LABS_STABILITY", "0.8")
	defer func() {
		os.Unsetenv("ELEVEN_LABS_API_KEY")
		os.Unsetenv("ELEVEN_LABS_VOICE_ID")
		os.Unsetenv("ELEVEN_LABS_CHUNK_SIZE")
		os.Unsetenv("ELEVEN_LABS_STABILITY")
	}()

	config := NewElevenLabsConfigFromEnv()
	if config.VoiceID != "custom-voice" {
		t.Errorf("VoiceID = %q", config.VoiceID)
	}
	if config.ChunkSize != 2048 {
		t.Errorf("ChunkSize = %d", config.ChunkSize)
	}
	if config.Stability != 0.8 {
		t.Errorf("Stability = %f", config.Stability)
	}
}

func TestConvertTextToSpeechRejectsEmptyText(t *testing.T) {
	logger := zaptest.NewLogger(t)
	os.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")
	defer os.Unsetenv("ELEVEN_LABS_API_KEY")

	config := NewElevenLabsConfigFromEnv()
	tts, err := NewElevenLabsTTS(config, logger)
	if err != nil {
		t.Fatalf("failed to create ElevenLabsTTS: %v", err)
	}

	ctx := context.Background()
	if _, err := tts.ConvertTextToSpeech(ctx, ""); err == nil {
		t.Error("expected error for empty text")
	}
	if _, err := tts.ConvertTextToSpeech(ctx, "   "); err == nil {
		t.Error("expected error for whitespace-only text")
	}
}
