package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/adapters"
	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/internal/sessionstore"
)

// scriptedGenerator returns a fixed reply for every query.
type scriptedGenerator struct {
	answer  string
	summary string
}

func (s *scriptedGenerator) Generate(ctx context.Context, query string, history []entities.Message, knowledge entities.Knowledge) (entities.GeneratedReply, error) {
	return entities.GeneratedReply{
		Answer:             s.answer,
		SpokenSummary:      s.summary,
		SuggestedQuestions: []string{"Anything else?"},
	}, nil
}

type wsFixture struct {
	server *httptest.Server
	conn   *websocket.Conn
	bot    *entities.Bot
	store  sessionstore.Store
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	logger := zap.NewNop()

	repo := adapters.NewMemoryBotRepository()
	bot := entities.NewBot("Support Bot", "Welcome aboard!")
	if err := repo.Create(context.Background(), bot); err != nil {
		t.Fatalf("seed bot: %v", err)
	}

	store, _ := sessionstore.NewStore(sessionstore.StoreTypeMemory)
	gen := &scriptedGenerator{answer: "We open at nine.", summary: "Nine o'clock."}
	hub := NewHub(repo, gen, nil, nil, store, logger)
	go hub.Run()

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, logger)
	})
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &wsFixture{server: server, conn: conn, bot: bot, store: store}
}

func (f *wsFixture) sendJSON(t *testing.T, v interface{}) {
	t.Helper()
	if err := f.conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads text frames, skipping unrelated messages, until one of the
// wanted type arrives.
func (f *wsFixture) readUntil(t *testing.T, want MessageType) ServerMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	f.conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		frameType, payload, err := f.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		if frameType != websocket.TextMessage {
			continue
		}
		var msg ServerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("timed out waiting for %s", want)
	return ServerMessage{}
}

func TestSessionStartSendsProfileAndSpeaksWelcome(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "session_start", "bot_id": f.bot.ID})

	started := f.readUntil(t, MessageTypeSessionStarted)
	if started.SessionID == "" {
		t.Error("session_started missing session id")
	}
	if started.Bot == nil || started.Bot.Name != "Support Bot" {
		t.Errorf("bot profile = %+v", started.Bot)
	}

	speak := f.readUntil(t, MessageTypeSpeak)
	if speak.Text != "Welcome aboard!" {
		t.Errorf("spoken welcome = %q", speak.Text)
	}
}

func TestSpeakDoneMovesToListening(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "session_start", "bot_id": f.bot.ID})
	f.readUntil(t, MessageTypeSpeak)

	f.sendJSON(t, map[string]string{"type": "speak_done"})
	f.readUntil(t, MessageTypeCaptureStart)
}

func TestCaptureResultProducesReply(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "session_start", "bot_id": f.bot.ID})
	f.readUntil(t, MessageTypeSpeak)
	f.sendJSON(t, map[string]string{"type": "speak_done"})
	f.readUntil(t, MessageTypeCaptureStart)

	f.sendJSON(t, map[string]string{"type": "capture_result", "transcript": "when do you open"})

	speak := f.readUntil(t, MessageTypeSpeak)
	if speak.Text != "Nine o'clock." {
		t.Errorf("spoken reply = %q", speak.Text)
	}
}

func TestTextMessageProducesReplyState(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "session_start", "bot_id": f.bot.ID})
	f.readUntil(t, MessageTypeSessionStarted)

	f.sendJSON(t, map[string]string{"type": "text_message", "text": "when do you open"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := f.readUntil(t, MessageTypeState)
		if msg.State == nil {
			t.Fatal("state message without snapshot")
		}
		for _, m := range msg.State.Transcript {
			if m.Speaker == entities.SpeakerAssistant && m.Content() == "We open at nine." {
				return
			}
		}
	}
	t.Fatal("never observed the assistant reply in a state snapshot")
}

func TestSessionResumeRestoresTranscript(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "session_start", "bot_id": f.bot.ID})
	started := f.readUntil(t, MessageTypeSessionStarted)
	f.sendJSON(t, map[string]string{"type": "text_message", "text": "when do you open"})
	f.readUntil(t, MessageTypeSpeak)

	// Reconnect with the same session id; the transcript should seed the
	// new session.
	f.conn.Close()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("redial: %v", err)
	}
	defer conn.Close()
	f.conn = conn

	f.sendJSON(t, map[string]string{
		"type":       "session_start",
		"bot_id":     f.bot.ID,
		"session_id": started.SessionID,
	})
	f.readUntil(t, MessageTypeSessionStarted)

	state := f.readUntil(t, MessageTypeState)
	if state.State == nil || len(state.State.Transcript) < 3 {
		t.Fatalf("resumed transcript too short: %+v", state.State)
	}
	if state.State.Transcript[0].Content() != "Welcome aboard!" {
		t.Errorf("first message = %q", state.State.Transcript[0].Content())
	}
}

func TestSessionStartUnknownBot(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "session_start", "bot_id": "no-such-bot"})

	msg := f.readUntil(t, MessageTypeError)
	if msg.Message != "bot not found" {
		t.Errorf("error message = %q", msg.Message)
	}
}

func TestInvalidMessageRejected(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "teleport"})
	f.readUntil(t, MessageTypeError)
}

func TestSnapshotNeverLeaksAdminPass(t *testing.T) {
	f := newWSFixture(t)

	f.sendJSON(t, map[string]string{"type": "session_start", "bot_id": f.bot.ID})
	started := f.readUntil(t, MessageTypeSessionStarted)

	raw, _ := json.Marshal(started)
	if strings.Contains(string(raw), f.bot.AdminPass) {
		t.Error("session_started leaked the admin pass")
	}
}

func TestHandleWebSocketRejectsPlainGet(t *testing.T) {
	logger := zap.NewNop()
	repo := adapters.NewMemoryBotRepository()
	store, _ := sessionstore.NewStore(sessionstore.StoreTypeMemory)
	hub := NewHub(repo, &scriptedGenerator{}, nil, nil, store, logger)
	go hub.Run()

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, logger)
	})
	server := httptest.NewServer(e)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("plain GET should not upgrade")
	}
}
