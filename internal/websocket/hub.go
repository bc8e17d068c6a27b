// Package websocket bridges embedded widgets to conversation sessions. Each
// socket carries one assistant session: control messages flow as JSON text
// frames, raw audio for server-side transcription flows as binary frames.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/domain/repositories"
	"github.com/lordofthechatbot/server/internal/sessionstore"
	"github.com/lordofthechatbot/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	persistTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Widgets embed on arbitrary customer sites.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active widget clients and owns the shared
// capabilities each session needs.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	bots        repositories.BotRepository
	generator   repositories.ResponseGenerator
	transcriber repositories.AudioTranscriber
	tts         repositories.TextToSpeech
	sessions    sessionstore.Store

	logger *zap.Logger
}

// NewHub creates a WebSocket hub. transcriber and tts are optional; without
// them widgets must run recognition and synthesis locally.
func NewHub(
	bots repositories.BotRepository,
	generator repositories.ResponseGenerator,
	transcriber repositories.AudioTranscriber,
	tts repositories.TextToSpeech,
	sessions sessionstore.Store,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		bots:        bots,
		generator:   generator,
		transcriber: transcriber,
		tts:         tts,
		sessions:    sessions,
		logger:      logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("client registered", zap.String("remoteAddr", client.conn.RemoteAddr().String()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Info("client unregistered", zap.String("remoteAddr", client.conn.RemoteAddr().String()))
		}
	}
}

// WriteData is one outbound websocket frame.
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// Client is a middleman between one widget connection and its assistant
// session.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan WriteData

	capture   *remoteCapture
	synth     *remoteSynth
	assistant *usecase.Assistant

	logger *zap.Logger

	mu         sync.Mutex
	sendClosed bool
	sessionID  string
	botID      string
	sttStream  repositories.TranscriptionStream
	sttCancel  context.CancelFunc
	lastActive time.Time
}

// HandleWebSocket upgrades the request and starts the client's pumps.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("websocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan WriteData, 256),
		logger:     logger,
		lastActive: time.Now(),
	}
	client.capture = &remoteCapture{client: client}
	client.synth = &remoteSynth{client: client, tts: hub.tts, logger: logger}
	client.assistant = usecase.NewAssistant(client.capture, client.synth, hub.generator, logger)

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection into the session.
func (c *Client) readPump() {
	defer func() {
		c.teardown()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", zap.Error(err))
			}
			break
		}
		c.touch()

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("received unknown frame type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps frames from the send channel to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON enqueues a control message for the write pump. A full buffer drops
// the frame rather than blocking the session.
func (c *Client) sendJSON(msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	if !c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload}) {
		c.logger.Warn("dropping message, send buffer full", zap.String("type", string(msg.Type)))
	}
}

// enqueue puts a frame on the send channel unless the client has already been
// unregistered. Late completion callbacks from a torn-down session must not
// write to a closed channel.
func (c *Client) enqueue(frame WriteData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Client) processMessage(message []byte) {
	msg, err := ParseClientMessage(message)
	if err != nil {
		c.logger.Warn("rejected message", zap.Error(err))
		c.sendJSON(newErrorMessage(err.Error()))
		return
	}

	switch msg.Type {
	case MessageTypeSessionStart:
		c.handleSessionStart(msg)
	case MessageTypeSessionStop:
		c.handleSessionStop()
	case MessageTypeTextMessage:
		c.assistant.SendTextMessage(msg.Text)
	case MessageTypeCaptureResult:
		c.capture.dispatchResult(msg.Transcript)
	case MessageTypeCaptureEnd:
		c.capture.dispatchEnd()
	case MessageTypeCaptureError:
		c.capture.dispatchError(repositories.CaptureErrorCode(msg.Code), msg.Message)
	case MessageTypeSpeakDone:
		c.synth.dispatchDone()
	case MessageTypeSpeakError:
		c.synth.dispatchError(msg.Message)
	case MessageTypeAudioStart:
		c.handleAudioStart(msg)
	case MessageTypeAudioEnd:
		c.handleAudioEnd()
	}
}

// handleSessionStart opens an assistant session for the requested bot. A
// known session id resumes its stored transcript; otherwise the bot's welcome
// message seeds the conversation.
func (c *Client) handleSessionStart(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	bot, err := c.hub.bots.GetByID(ctx, msg.BotID)
	if err != nil {
		c.logger.Warn("session start for unknown bot", zap.String("botId", msg.BotID), zap.Error(err))
		c.sendJSON(newErrorMessage("bot not found"))
		return
	}

	if c.assistant.IsActive() {
		c.assistant.StopSession()
	}

	sessionID := msg.SessionID
	seed := usecase.WelcomeSeed(bot)
	if sessionID != "" {
		record, err := c.hub.sessions.Get(ctx, sessionID)
		if err == nil && record.BotID == bot.ID && len(record.Transcript) > 0 {
			seed = record.Transcript
		}
	} else {
		sessionID = uuid.New().String()
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.botID = bot.ID
	c.mu.Unlock()

	c.assistant.SetObserver(func(snap usecase.Snapshot) {
		c.sendJSON(newStateMessage(snap))
		c.persistTranscript(snap)
	})

	c.sendJSON(ServerMessage{
		Type:      MessageTypeSessionStarted,
		SessionID: sessionID,
		Bot: &BotProfile{
			ID:             bot.ID,
			Name:           bot.Name,
			WelcomeMessage: bot.WelcomeMessage,
			ImageBase64:    bot.ImageBase64,
			WavyColor:      bot.WavyColor,
		},
	})

	c.assistant.StartSession(bot, seed)
}

func (c *Client) handleSessionStop() {
	c.assistant.StopSession()
	c.closeTranscription()
}

// persistTranscript stores the live transcript so a reconnecting widget can
// resume. The stop transition clears the transcript and is not persisted.
func (c *Client) persistTranscript(snap usecase.Snapshot) {
	if !snap.Active || len(snap.Transcript) == 0 {
		return
	}

	c.mu.Lock()
	sessionID := c.sessionID
	botID := c.botID
	c.mu.Unlock()
	if sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	record := &sessionstore.Record{
		ID:         sessionID,
		BotID:      botID,
		Transcript: snap.Transcript,
	}
	if err := c.hub.sessions.Save(ctx, record); err != nil {
		c.logger.Error("failed to persist transcript",
			zap.String("sessionId", sessionID),
			zap.Error(err))
	}
}

// handleAudioStart opens a server-side transcription stream for one
// utterance. Subsequent binary frames feed it until audio_end.
func (c *Client) handleAudioStart(msg *ClientMessage) {
	if c.hub.transcriber == nil {
		c.sendJSON(newErrorMessage("audio transcription is not configured"))
		return
	}

	config := repositories.AudioConfig{
		SampleRate: 48000,
		Language:   "en-US",
		Encoding:   "LINEAR16",
	}
	if msg.SampleRate > 0 {
		config.SampleRate = msg.SampleRate
	}
	if msg.Language != "" {
		config.Language = msg.Language
	}
	if msg.Encoding != "" {
		config.Encoding = msg.Encoding
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	stream, err := c.hub.transcriber.InitStream(ctx, config)
	if err != nil {
		cancel()
		c.logger.Error("failed to init transcription stream", zap.Error(err))
		c.sendJSON(newErrorMessage("failed to start transcription"))
		return
	}

	c.mu.Lock()
	if c.sttCancel != nil {
		c.sttCancel()
	}
	c.sttStream = stream
	c.sttCancel = cancel
	c.mu.Unlock()
}

func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mu.Lock()
	stream := c.sttStream
	c.mu.Unlock()

	if stream == nil {
		c.logger.Warn("binary audio chunk without an open transcription stream")
		return
	}
	if err := stream.Stream(data); err != nil {
		c.logger.Error("failed to stream audio chunk", zap.Error(err))
	}
}

// handleAudioEnd finalizes the transcription stream and feeds the transcript
// into the session as a capture result. A failed or empty transcription is
// surfaced as a transient no-speech error so the session retries listening.
func (c *Client) handleAudioEnd() {
	c.mu.Lock()
	stream := c.sttStream
	cancel := c.sttCancel
	c.sttStream = nil
	c.sttCancel = nil
	c.mu.Unlock()

	if stream == nil {
		return
	}

	go func() {
		defer cancel()
		transcript, err := stream.End()
		if err != nil {
			c.logger.Warn("transcription ended without a result", zap.Error(err))
			c.capture.dispatchError(repositories.CaptureErrNoSpeech, err.Error())
			return
		}
		c.capture.dispatchResult(transcript)
	}()
}

func (c *Client) closeTranscription() {
	c.mu.Lock()
	if c.sttCancel != nil {
		c.sttCancel()
		c.sttCancel = nil
	}
	c.sttStream = nil
	c.mu.Unlock()
}

// teardown ends the session when the socket goes away. The transcript stays
// in the session store so the widget can resume on reconnect.
func (c *Client) teardown() {
	if c.assistant.IsActive() {
		c.assistant.StopSession()
	}
	c.closeTranscription()
}
