package repositories

import "context"

// CaptureErrorCode is the fixed error vocabulary of the speech capture
// boundary. Codes outside this set are treated generically.
type CaptureErrorCode string

const (
	CaptureErrNoSpeech          CaptureErrorCode = "no-speech"
	CaptureErrAborted           CaptureErrorCode = "aborted"
	CaptureErrNotAllowed        CaptureErrorCode = "not-allowed"
	CaptureErrServiceNotAllowed CaptureErrorCode = "service-not-allowed"
	CaptureErrAudioCapture      CaptureErrorCode = "audio-capture"
	CaptureErrNetwork           CaptureErrorCode = "network"
)

// Transient reports whether the error code should be silently retried while
// the session is active.
func (c CaptureErrorCode) Transient() bool {
	return c == CaptureErrNoSpeech || c == CaptureErrAborted
}

// Fatal reports whether the error code ends the session (permission denied).
func (c CaptureErrorCode) Fatal() bool {
	return c == CaptureErrNotAllowed || c == CaptureErrServiceNotAllowed
}

// CaptureCallbacks receive completion events from a capture attempt. Any nil
// callback is skipped. Implementations must not invoke callbacks after
// SetCallbacks replaced them.
type CaptureCallbacks struct {
	// OnResult delivers the finalized transcript. Empty or whitespace-only
	// results are delivered as OnEnd instead.
	OnResult func(text string)
	// OnEnd fires when a capture attempt finishes without a result.
	OnEnd func()
	// OnError fires on a recognition error.
	OnError func(code CaptureErrorCode, message string)
}

// SpeechCapture abstracts a speech recognition engine. At most one capture
// attempt is armed at a time; Start while armed is an error. Abort tears the
// attempt down without delivering a result.
type SpeechCapture interface {
	SetCallbacks(cb CaptureCallbacks)
	Start() error
	Stop()
	Abort()
}

// SynthCallbacks receive completion events for one utterance.
type SynthCallbacks struct {
	OnDone  func()
	OnError func(message string)
}

// SpeechSynthesizer abstracts an audio playback engine. Playback is
// exclusive: Speak must cancel any in-flight utterance first, and Cancel
// suppresses the cancelled utterance's callbacks.
type SpeechSynthesizer interface {
	Speak(text string, cb SynthCallbacks)
	Cancel()
}

// AudioConfig describes raw audio pushed through the server-side
// transcription path.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// AudioTranscriber converts streamed raw audio to text, for widgets that do
// not run recognition locally.
type AudioTranscriber interface {
	InitStream(ctx context.Context, config AudioConfig) (TranscriptionStream, error)
}

// TranscriptionStream is one streaming transcription attempt.
type TranscriptionStream interface {
	Stream(data []byte) error
	End() (string, error)
}

// TextToSpeech converts text to an audio chunk stream, for widgets that do
// not synthesize locally. The channel is closed when synthesis completes.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
}
