package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/domain/repositories"
)

const (
	// listenDelay postpones the first capture start when a session begins
	// without a spoken welcome, giving the client a beat to settle.
	listenDelay = 100 * time.Millisecond

	// maxCaptureRetries bounds consecutive silent restarts after no-speech
	// or aborted capture attempts. Without a bound, a misbehaving capture
	// engine could restart forever.
	maxCaptureRetries = 8

	generateTimeout = 60 * time.Second
)

// User-facing error strings. The configuration message is deliberately
// distinct so an operator knows to configure access instead of retrying.
const (
	msgPermissionDenied  = "Microphone access was denied. Please check browser permissions."
	msgRecognitionFailed = "A speech recognition error occurred."
	msgPlaybackFailed    = "An error occurred during audio playback."
	msgMissingAPIKey     = "The Google AI API Key is not configured for this application. Please contact the administrator."
	msgGeneratorDown     = "Sorry, I'm having trouble connecting to the smart assistant right now. Please try again later."
)

// fallbackSuggestions accompany a fallback reply so the conversation stays
// recoverable after a generator failure.
var fallbackSuggestions = []string{
	"What services are available?",
	"How can I subscribe?",
	"What are the business hours?",
}

// Snapshot is the only view of a session the presentation shell observes.
type Snapshot struct {
	Status     entities.Status    `json:"status"`
	Transcript []entities.Message `json:"transcript"`
	Err        string             `json:"error,omitempty"`
	Active     bool               `json:"active"`
}

// Assistant runs one voice/text conversation session: speech capture,
// response generation, speech playback and idle/listening cycling. Speech
// capture and playback are independent engines with their own asynchronous
// completion callbacks, so every continuation re-checks a session generation
// token before touching state. A late callback from a superseded capture or
// utterance must be a no-op.
type Assistant struct {
	capture   repositories.SpeechCapture
	synth     repositories.SpeechSynthesizer
	generator repositories.ResponseGenerator
	logger    *zap.Logger

	mu             sync.Mutex
	status         entities.Status
	errMsg         string
	transcript     []entities.Message
	active         bool
	bot            *entities.Bot
	generation     uint64
	turn           uint64
	genCancel      context.CancelFunc
	captureRetries int

	observer func(Snapshot)
}

// NewAssistant creates an assistant wired to the given capture, synthesis and
// generation capabilities.
func NewAssistant(
	capture repositories.SpeechCapture,
	synth repositories.SpeechSynthesizer,
	generator repositories.ResponseGenerator,
	logger *zap.Logger,
) *Assistant {
	return &Assistant{
		capture:   capture,
		synth:     synth,
		generator: generator,
		logger:    logger,
		status:    entities.StatusIdle,
	}
}

// SetObserver registers the presentation-shell callback invoked after every
// observable state change. The callback runs outside the assistant's lock.
func (a *Assistant) SetObserver(fn func(Snapshot)) {
	a.mu.Lock()
	a.observer = fn
	a.mu.Unlock()
}

// Snapshot returns the current {status, transcript, error} view.
func (a *Assistant) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Assistant) snapshotLocked() Snapshot {
	transcript := make([]entities.Message, len(a.transcript))
	copy(transcript, a.transcript)
	return Snapshot{
		Status:     a.status,
		Transcript: transcript,
		Err:        a.errMsg,
		Active:     a.active,
	}
}

func (a *Assistant) notify() {
	a.mu.Lock()
	fn := a.observer
	snap := a.snapshotLocked()
	a.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// WelcomeSeed builds the seed transcript for a bot: a single assistant
// message carrying the welcome text as both answer and spoken summary.
// Returns nil for an empty welcome message.
func WelcomeSeed(bot *entities.Bot) []entities.Message {
	welcome := strings.TrimSpace(bot.WelcomeMessage)
	if welcome == "" {
		return nil
	}
	return []entities.Message{
		entities.NewAssistantMessage([]string{welcome}, welcome, nil),
	}
}

// StartSession opens a session for the bot with optional seed messages. If
// the first assistant seed message carries a spoken summary it is spoken
// first; otherwise listening begins after a short delay.
func (a *Assistant) StartSession(bot *entities.Bot, seed []entities.Message) {
	a.mu.Lock()
	a.generation++
	token := a.generation
	a.bot = bot
	a.active = true
	a.errMsg = ""
	a.status = entities.StatusIdle
	a.captureRetries = 0
	a.transcript = append([]entities.Message(nil), seed...)

	var spoken string
	for _, m := range seed {
		if m.Speaker == entities.SpeakerAssistant {
			spoken = m.SpokenSummary
			break
		}
	}
	a.mu.Unlock()

	a.capture.SetCallbacks(a.captureCallbacks(token))
	a.notify()

	if spoken != "" {
		a.speak(token, spoken)
		return
	}
	time.AfterFunc(listenDelay, func() {
		// Only begin listening if nothing else moved the session on,
		// e.g. a typed message arriving inside the delay window.
		a.mu.Lock()
		stale := token != a.generation || !a.active || a.status != entities.StatusIdle
		a.mu.Unlock()
		if stale {
			return
		}
		a.startListening(token)
	})
}

// StopSession ends the session: callbacks are detached before the capture is
// aborted so the abort's own completion cannot re-trigger listening, audio is
// cancelled, and the transcript is cleared.
func (a *Assistant) StopSession() {
	a.mu.Lock()
	a.generation++
	a.active = false
	a.bot = nil
	a.transcript = make([]entities.Message, 0)
	a.status = entities.StatusIdle
	a.errMsg = ""
	if a.genCancel != nil {
		a.genCancel()
		a.genCancel = nil
	}
	a.mu.Unlock()

	a.capture.SetCallbacks(repositories.CaptureCallbacks{})
	a.capture.Abort()
	a.synth.Cancel()
	a.notify()
}

// SendTextMessage injects a typed user message, preempting whatever audio
// playback or capture is in flight. This path bypasses listening entirely.
// Without an active session the message is ignored.
func (a *Assistant) SendTextMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	token := a.generation
	history := make([]entities.Message, len(a.transcript))
	copy(history, a.transcript)
	a.transcript = append(a.transcript, entities.NewUserMessage(text))
	a.status = entities.StatusThinking
	turn := a.nextTurnLocked()
	a.mu.Unlock()

	// Both exclusive resources are torn down before the new generation call
	// is issued, so stale audio or capture cannot race the new turn.
	a.synth.Cancel()
	a.capture.Abort()
	a.notify()

	go a.generate(token, turn, text, history)
}

// IsActive reports whether a session is currently open.
func (a *Assistant) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// nextTurnLocked supersedes any in-flight generation request. The previous
// request's context is cancelled and its settlement will fail the turn check.
func (a *Assistant) nextTurnLocked() uint64 {
	a.turn++
	if a.genCancel != nil {
		a.genCancel()
		a.genCancel = nil
	}
	return a.turn
}

func (a *Assistant) captureCallbacks(token uint64) repositories.CaptureCallbacks {
	return repositories.CaptureCallbacks{
		OnResult: func(text string) { a.onCaptureResult(token, text) },
		OnEnd:    func() { a.restartCapture(token) },
		OnError:  func(code repositories.CaptureErrorCode, message string) { a.onCaptureError(token, code, message) },
	}
}

func (a *Assistant) startListening(token uint64) {
	a.mu.Lock()
	if token != a.generation || !a.active {
		a.mu.Unlock()
		return
	}
	a.status = entities.StatusListening
	a.mu.Unlock()
	a.notify()

	if err := a.capture.Start(); err != nil {
		a.logger.Warn("speech capture could not start", zap.Error(err))
	}
}

// restartCapture silently re-arms capture after an attempt ended without a
// result, up to maxCaptureRetries consecutive times.
func (a *Assistant) restartCapture(token uint64) {
	a.mu.Lock()
	if token != a.generation || !a.active || a.status != entities.StatusListening {
		a.mu.Unlock()
		return
	}
	if a.captureRetries >= maxCaptureRetries {
		a.status = entities.StatusError
		a.errMsg = msgRecognitionFailed
		a.mu.Unlock()
		a.notify()
		return
	}
	a.captureRetries++
	a.mu.Unlock()

	if err := a.capture.Start(); err != nil {
		a.logger.Warn("speech capture could not restart", zap.Error(err))
	}
}

func (a *Assistant) onCaptureResult(token uint64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		a.restartCapture(token)
		return
	}

	a.mu.Lock()
	if token != a.generation || !a.active {
		a.mu.Unlock()
		return
	}
	a.captureRetries = 0
	history := make([]entities.Message, len(a.transcript))
	copy(history, a.transcript)
	a.transcript = append(a.transcript, entities.NewUserMessage(text))
	a.status = entities.StatusThinking
	turn := a.nextTurnLocked()
	a.mu.Unlock()
	a.notify()

	go a.generate(token, turn, text, history)
}

func (a *Assistant) onCaptureError(token uint64, code repositories.CaptureErrorCode, message string) {
	if code.Transient() {
		a.restartCapture(token)
		return
	}

	a.mu.Lock()
	if token != a.generation {
		a.mu.Unlock()
		return
	}
	a.logger.Error("speech capture error",
		zap.String("code", string(code)),
		zap.String("message", message))
	if code.Fatal() {
		a.errMsg = msgPermissionDenied
		a.status = entities.StatusError
		a.active = false
	} else {
		a.errMsg = msgRecognitionFailed
		a.status = entities.StatusError
	}
	a.mu.Unlock()
	a.notify()
}

// generate runs one response-generator call. On failure a fallback assistant
// message is appended and spoken, so the transcript and audio channel never
// go silent.
func (a *Assistant) generate(token, turn uint64, query string, history []entities.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)

	a.mu.Lock()
	if token != a.generation || turn != a.turn {
		a.mu.Unlock()
		cancel()
		return
	}
	bot := a.bot
	a.genCancel = cancel
	a.mu.Unlock()

	reply, err := a.generator.Generate(ctx, query, history, bot.Knowledge)
	cancel()

	if err != nil {
		a.logger.Error("response generation failed", zap.Error(err))
		text := msgGeneratorDown
		if repositories.IsConfigurationError(err) {
			text = msgMissingAPIKey
		}
		reply = entities.GeneratedReply{
			Answer:             text,
			SpokenSummary:      text,
			SuggestedQuestions: append([]string(nil), fallbackSuggestions...),
		}
	}

	a.mu.Lock()
	if token != a.generation || turn != a.turn {
		a.mu.Unlock()
		return
	}
	a.genCancel = nil
	if err != nil {
		a.errMsg = reply.Answer
		a.status = entities.StatusError
	}
	a.transcript = append(a.transcript, reply.AsMessage())
	a.mu.Unlock()
	a.notify()

	a.speak(token, reply.SpokenSummary)
}

// speak plays the spoken summary. Playback is exclusive: any in-flight
// utterance is cancelled first.
func (a *Assistant) speak(token uint64, text string) {
	if strings.TrimSpace(text) == "" {
		a.afterSpeaking(token)
		return
	}

	a.mu.Lock()
	if token != a.generation {
		a.mu.Unlock()
		return
	}
	a.status = entities.StatusSpeaking
	a.mu.Unlock()
	a.notify()

	a.synth.Cancel()
	a.synth.Speak(text, repositories.SynthCallbacks{
		OnDone:  func() { a.afterSpeaking(token) },
		OnError: func(message string) { a.onSpeakError(token, message) },
	})
}

// afterSpeaking resumes listening if the session is still active, otherwise
// settles back to idle.
func (a *Assistant) afterSpeaking(token uint64) {
	a.mu.Lock()
	if token != a.generation {
		a.mu.Unlock()
		return
	}
	if a.active {
		a.mu.Unlock()
		a.startListening(token)
		return
	}
	a.status = entities.StatusIdle
	a.mu.Unlock()
	a.notify()
}

func (a *Assistant) onSpeakError(token uint64, message string) {
	a.mu.Lock()
	if token != a.generation {
		a.mu.Unlock()
		return
	}
	a.logger.Error("speech playback error", zap.String("message", message))
	a.errMsg = msgPlaybackFailed
	a.status = entities.StatusError
	a.mu.Unlock()
	a.notify()
}
