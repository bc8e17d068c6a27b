package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/lordofthechatbot/server/usecase"
)

// MessageType defines the type of a WebSocket control message.
type MessageType string

// Inbound message types (widget to server).
const (
	MessageTypeSessionStart  MessageType = "session_start"
	MessageTypeSessionStop   MessageType = "session_stop"
	MessageTypeTextMessage   MessageType = "text_message"
	MessageTypeCaptureResult MessageType = "capture_result"
	MessageTypeCaptureEnd    MessageType = "capture_end"
	MessageTypeCaptureError  MessageType = "capture_error"
	MessageTypeSpeakDone     MessageType = "speak_done"
	MessageTypeSpeakError    MessageType = "speak_error"
	MessageTypeAudioStart    MessageType = "audio_start"
	MessageTypeAudioEnd      MessageType = "audio_end"
)

// Outbound message types (server to widget).
const (
	MessageTypeSessionStarted  MessageType = "session_started"
	MessageTypeState           MessageType = "state"
	MessageTypeCaptureStart    MessageType = "capture_start"
	MessageTypeCaptureStop     MessageType = "capture_stop"
	MessageTypeCaptureAbort    MessageType = "capture_abort"
	MessageTypeSpeak           MessageType = "speak"
	MessageTypeSpeakCancel     MessageType = "speak_cancel"
	MessageTypeSpeakAudioStart MessageType = "speak_audio_start"
	MessageTypeSpeakAudioEnd   MessageType = "speak_audio_end"
	MessageTypeError           MessageType = "error"
)

// ClientMessage is the envelope for every inbound control message. Fields
// beyond Type are populated per message type.
type ClientMessage struct {
	Type MessageType `json:"type"`

	// session_start
	BotID     string `json:"bot_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// text_message
	Text string `json:"text,omitempty"`

	// capture_result
	Transcript string `json:"transcript,omitempty"`

	// capture_error / speak_error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// audio_start
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Language   string `json:"language,omitempty"`
}

// ParseClientMessage parses and validates one inbound control message.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type field")
	}

	switch msg.Type {
	case MessageTypeSessionStart:
		if msg.BotID == "" {
			return nil, fmt.Errorf("session_start requires bot_id")
		}
	case MessageTypeTextMessage:
		if msg.Text == "" {
			return nil, fmt.Errorf("text_message requires text")
		}
	case MessageTypeCaptureError:
		if msg.Code == "" {
			return nil, fmt.Errorf("capture_error requires code")
		}
	case MessageTypeAudioStart:
		if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
			return nil, fmt.Errorf("sample_rate must be between 8000 and 48000")
		}
	case MessageTypeSessionStop, MessageTypeCaptureResult, MessageTypeCaptureEnd,
		MessageTypeSpeakDone, MessageTypeSpeakError, MessageTypeAudioEnd:
		// No required fields beyond type.
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
	return &msg, nil
}

// BotProfile is the public slice of a bot sent to a starting widget. The
// admin pass and the knowledge corpus never cross the socket.
type BotProfile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	WelcomeMessage string `json:"welcome_message"`
	ImageBase64    string `json:"image_base64,omitempty"`
	WavyColor      string `json:"wavy_color,omitempty"`
}

// ServerMessage is the envelope for outbound control messages.
type ServerMessage struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Bot       *BotProfile       `json:"bot,omitempty"`
	Text      string            `json:"text,omitempty"`
	Message   string            `json:"message,omitempty"`
	State     *usecase.Snapshot `json:"state,omitempty"`
}

func newCommand(t MessageType) ServerMessage {
	return ServerMessage{Type: t}
}

func newSpeakCommand(text string) ServerMessage {
	return ServerMessage{Type: MessageTypeSpeak, Text: text}
}

func newStateMessage(snapshot usecase.Snapshot) ServerMessage {
	return ServerMessage{Type: MessageTypeState, State: &snapshot}
}

func newErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, Message: message}
}
