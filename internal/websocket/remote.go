package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/domain/repositories"
)

// remoteCapture implements repositories.SpeechCapture against a connected
// widget. Start/Stop/Abort become socket commands; the widget's recognition
// events come back as capture_* messages and are dispatched to the callbacks
// registered by the assistant.
type remoteCapture struct {
	client *Client

	mu        sync.Mutex
	callbacks repositories.CaptureCallbacks
}

var _ repositories.SpeechCapture = (*remoteCapture)(nil)

func (r *remoteCapture) SetCallbacks(cb repositories.CaptureCallbacks) {
	r.mu.Lock()
	r.callbacks = cb
	r.mu.Unlock()
}

func (r *remoteCapture) Start() error {
	r.client.sendJSON(newCommand(MessageTypeCaptureStart))
	return nil
}

func (r *remoteCapture) Stop() {
	r.client.sendJSON(newCommand(MessageTypeCaptureStop))
}

func (r *remoteCapture) Abort() {
	r.client.sendJSON(newCommand(MessageTypeCaptureAbort))
}

func (r *remoteCapture) dispatchResult(text string) {
	r.mu.Lock()
	cb := r.callbacks.OnResult
	r.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

func (r *remoteCapture) dispatchEnd() {
	r.mu.Lock()
	cb := r.callbacks.OnEnd
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (r *remoteCapture) dispatchError(code repositories.CaptureErrorCode, message string) {
	r.mu.Lock()
	cb := r.callbacks.OnError
	r.mu.Unlock()
	if cb != nil {
		cb(code, message)
	}
}

// remoteSynth implements repositories.SpeechSynthesizer against a connected
// widget. When the hub carries a server-side TTS engine the audio itself is
// streamed down as binary frames; otherwise the widget synthesizes locally
// from the speak command's text. Either way the widget reports completion
// with speak_done or speak_error.
type remoteSynth struct {
	client *Client
	tts    repositories.TextToSpeech
	logger *zap.Logger

	mu        sync.Mutex
	callbacks repositories.SynthCallbacks
	cancelTTS context.CancelFunc
}

var _ repositories.SpeechSynthesizer = (*remoteSynth)(nil)

func (r *remoteSynth) Speak(text string, cb repositories.SynthCallbacks) {
	r.mu.Lock()
	r.callbacks = cb
	if r.cancelTTS != nil {
		r.cancelTTS()
		r.cancelTTS = nil
	}
	var ctx context.Context
	if r.tts != nil {
		ctx, r.cancelTTS = context.WithTimeout(context.Background(), 60*time.Second)
	}
	r.mu.Unlock()

	r.client.sendJSON(newSpeakCommand(text))

	if ctx != nil {
		go r.streamAudio(ctx, text)
	}
}

func (r *remoteSynth) Cancel() {
	r.mu.Lock()
	r.callbacks = repositories.SynthCallbacks{}
	if r.cancelTTS != nil {
		r.cancelTTS()
		r.cancelTTS = nil
	}
	r.mu.Unlock()

	r.client.sendJSON(newCommand(MessageTypeSpeakCancel))
}

func (r *remoteSynth) streamAudio(ctx context.Context, text string) {
	audioChan, err := r.tts.ConvertTextToSpeech(ctx, text)
	if err != nil {
		r.logger.Error("text-to-speech failed", zap.Error(err))
		r.dispatchError("speech synthesis failed")
		return
	}

	r.client.sendJSON(newCommand(MessageTypeSpeakAudioStart))
	for chunk := range audioChan {
		r.client.sendBinary(chunk)
	}
	r.client.sendJSON(newCommand(MessageTypeSpeakAudioEnd))
}

func (r *remoteSynth) dispatchDone() {
	r.mu.Lock()
	cb := r.callbacks.OnDone
	r.callbacks = repositories.SynthCallbacks{}
	if r.cancelTTS != nil {
		r.cancelTTS()
		r.cancelTTS = nil
	}
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (r *remoteSynth) dispatchError(message string) {
	r.mu.Lock()
	cb := r.callbacks.OnError
	r.callbacks = repositories.SynthCallbacks{}
	if r.cancelTTS != nil {
		r.cancelTTS()
		r.cancelTTS = nil
	}
	r.mu.Unlock()
	if cb != nil {
		cb(message)
	}
}

// sendBinary enqueues a binary frame for the write pump.
func (c *Client) sendBinary(data []byte) {
	if !c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: data}) {
		c.logger.Warn("dropping binary frame, send buffer full")
	}
}
