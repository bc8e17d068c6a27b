package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lordofthechatbot/server/adapters/speech"
	"github.com/lordofthechatbot/server/domain/entities"
	"github.com/lordofthechatbot/server/domain/repositories"
)

type stubGenerator struct {
	mu    sync.Mutex
	reply entities.GeneratedReply
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, query string, history []entities.Message, knowledge entities.Knowledge) (entities.GeneratedReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return entities.GeneratedReply{}, s.err
	}
	return s.reply, nil
}

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// retainingSynth keeps utterance callbacks alive past Cancel so tests can
// fire stale completions deliberately.
type retainingSynth struct {
	mu     sync.Mutex
	cbs    []repositories.SynthCallbacks
	spoken []string
}

func (r *retainingSynth) Speak(text string, cb repositories.SynthCallbacks) {
	r.mu.Lock()
	r.spoken = append(r.spoken, text)
	r.cbs = append(r.cbs, cb)
	r.mu.Unlock()
}

func (r *retainingSynth) Cancel() {}

func (r *retainingSynth) lastCallback() (repositories.SynthCallbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cbs) == 0 {
		return repositories.SynthCallbacks{}, false
	}
	return r.cbs[len(r.cbs)-1], true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testBot() *entities.Bot {
	bot := entities.NewBot("Shop Bot", "Welcome to the shop!")
	bot.Knowledge.AddTexts([]string{
		"Our store opens at 9am.",
		"Returns accepted within 30 days.",
	})
	return bot
}

func TestWelcomeSeed(t *testing.T) {
	bot := testBot()
	seed := WelcomeSeed(bot)
	if len(seed) != 1 {
		t.Fatalf("expected 1 seed message, got %d", len(seed))
	}
	if seed[0].Speaker != entities.SpeakerAssistant {
		t.Errorf("seed speaker = %s, want assistant", seed[0].Speaker)
	}
	if seed[0].SpokenSummary != "Welcome to the shop!" {
		t.Errorf("seed spoken summary = %q", seed[0].SpokenSummary)
	}

	bot.WelcomeMessage = "   "
	if seed := WelcomeSeed(bot); seed != nil {
		t.Errorf("expected nil seed for blank welcome, got %v", seed)
	}
}

func TestStartSessionSpeaksWelcomeBeforeListening(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{}
	gen := &stubGenerator{}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	bot := testBot()
	a.StartSession(bot, WelcomeSeed(bot))

	snap := a.Snapshot()
	if snap.Status != entities.StatusSpeaking {
		t.Fatalf("status = %s, want SPEAKING", snap.Status)
	}
	if capture.Starts != 0 {
		t.Errorf("capture started before welcome playback finished")
	}
	if len(synth.Spoken) != 1 || synth.Spoken[0] != "Welcome to the shop!" {
		t.Errorf("spoken = %v", synth.Spoken)
	}

	synth.FinishPending()
	waitFor(t, "listening after welcome", func() bool {
		return a.Snapshot().Status == entities.StatusListening
	})
	if capture.Starts != 1 {
		t.Errorf("capture starts = %d, want 1", capture.Starts)
	}
}

func TestStartSessionWithoutSeedGoesListening(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{AutoDone: true}
	a := NewAssistant(capture, synth, &stubGenerator{}, zap.NewNop())

	a.StartSession(testBot(), nil)

	waitFor(t, "listening without seed", func() bool {
		return a.Snapshot().Status == entities.StatusListening
	})
	if len(synth.Spoken) != 0 {
		t.Errorf("nothing should have been spoken, got %v", synth.Spoken)
	}
}

func TestCaptureResultRoundTrip(t *testing.T) {
	capture := speech.NewFakeCapture(speech.CaptureEvent{Text: "what time do you open"})
	synth := &speech.FakeSynthesizer{AutoDone: true}
	gen := &stubGenerator{reply: entities.GeneratedReply{
		Answer:             "We open at 9am.",
		SpokenSummary:      "We open at 9am.",
		SuggestedQuestions: []string{"Do you open on weekends?"},
	}}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	a.StartSession(testBot(), nil)

	waitFor(t, "assistant reply in transcript", func() bool {
		return len(a.Snapshot().Transcript) == 2
	})

	snap := a.Snapshot()
	if snap.Transcript[0].Speaker != entities.SpeakerUser || snap.Transcript[0].Text != "what time do you open" {
		t.Errorf("first message = %+v", snap.Transcript[0])
	}
	reply := snap.Transcript[1]
	if reply.Speaker != entities.SpeakerAssistant {
		t.Fatalf("second message speaker = %s", reply.Speaker)
	}
	if len(reply.TextParts) != 1 || reply.TextParts[0] != "We open at 9am." {
		t.Errorf("text parts = %v, want exactly the generated answer", reply.TextParts)
	}

	waitFor(t, "spoken summary played", func() bool {
		return len(synth.Spoken) == 1
	})
}

func TestSendTextMessageWhileSpeakingPreempts(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{}
	gen := &stubGenerator{reply: entities.GeneratedReply{
		Answer:             "Returns are accepted within 30 days.",
		SpokenSummary:      "Within 30 days.",
		SuggestedQuestions: []string{"How do I start a return?"},
	}}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	bot := testBot()
	a.StartSession(bot, WelcomeSeed(bot))
	if a.Snapshot().Status != entities.StatusSpeaking {
		t.Fatal("expected welcome playback in progress")
	}

	a.SendTextMessage("hello")

	snap := a.Snapshot()
	if snap.Status != entities.StatusThinking {
		t.Errorf("status = %s, want THINKING", snap.Status)
	}
	if synth.Cancels == 0 {
		t.Error("in-flight playback was not cancelled")
	}
	if capture.Aborts == 0 {
		t.Error("in-progress capture was not aborted")
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Speaker != entities.SpeakerUser || last.Text != "hello" {
		t.Errorf("last message = %+v, want user 'hello'", last)
	}

	// The cancelled welcome utterance must not complete later.
	if synth.FinishPending() {
		t.Error("cancelled utterance still had a pending completion")
	}

	waitFor(t, "reply to typed message", func() bool {
		s := a.Snapshot()
		return len(s.Transcript) == 3 && s.Status == entities.StatusSpeaking
	})
}

func TestGenerationErrorProducesSpokenFallback(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{}
	gen := &stubGenerator{err: repositories.NewGenerationError("invalid response structure")}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	a.StartSession(testBot(), nil)
	a.SendTextMessage("are you there")

	waitFor(t, "fallback reply", func() bool {
		return a.Snapshot().Status == entities.StatusSpeaking
	})

	snap := a.Snapshot()
	// Exactly one fallback assistant message after the user message.
	if len(snap.Transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(snap.Transcript))
	}
	fallback := snap.Transcript[1]
	if fallback.Speaker != entities.SpeakerAssistant {
		t.Fatalf("fallback speaker = %s", fallback.Speaker)
	}
	if len(fallback.SuggestedQuestions) == 0 {
		t.Error("fallback must carry generic suggested questions")
	}
	if snap.Err == "" {
		t.Error("error message should be surfaced")
	}
	if len(synth.Spoken) == 0 || synth.Spoken[len(synth.Spoken)-1] != fallback.SpokenSummary {
		t.Errorf("fallback was not spoken: %v", synth.Spoken)
	}
}

func TestConfigurationErrorIsDistinguishable(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{}
	gen := &stubGenerator{err: &repositories.ConfigurationError{Message: "GEMINI_API_KEY environment variable is required"}}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	a.StartSession(testBot(), nil)
	a.SendTextMessage("hi there")

	waitFor(t, "configuration fallback", func() bool {
		return a.Snapshot().Status == entities.StatusSpeaking
	})
	snap := a.Snapshot()
	if snap.Err != msgMissingAPIKey {
		t.Errorf("error = %q, want the API key configuration message", snap.Err)
	}
}

func TestTransientCaptureErrorsSilentlyRetry(t *testing.T) {
	capture := speech.NewFakeCapture(
		speech.CaptureEvent{Code: repositories.CaptureErrNoSpeech},
		speech.CaptureEvent{Code: repositories.CaptureErrAborted},
		speech.CaptureEvent{Text: "hi"},
	)
	synth := &speech.FakeSynthesizer{AutoDone: true}
	gen := &stubGenerator{reply: entities.GeneratedReply{
		Answer: "Hello!", SpokenSummary: "Hello!", SuggestedQuestions: []string{"What can you do?"},
	}}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	a.StartSession(testBot(), nil)

	waitFor(t, "reply after transient retries", func() bool {
		return len(a.Snapshot().Transcript) >= 2
	})
	if capture.Starts != 3 {
		t.Errorf("capture starts = %d, want 3", capture.Starts)
	}
}

func TestFatalCaptureErrorEndsSession(t *testing.T) {
	capture := speech.NewFakeCapture(
		speech.CaptureEvent{Code: repositories.CaptureErrNotAllowed, Message: "denied"},
	)
	synth := &speech.FakeSynthesizer{AutoDone: true}
	a := NewAssistant(capture, synth, &stubGenerator{}, zap.NewNop())

	a.StartSession(testBot(), nil)

	waitFor(t, "fatal capture error", func() bool {
		s := a.Snapshot()
		return s.Status == entities.StatusError && !s.Active
	})
	if a.Snapshot().Err != msgPermissionDenied {
		t.Errorf("error = %q", a.Snapshot().Err)
	}
}

func TestTransientRetriesAreBounded(t *testing.T) {
	var script []speech.CaptureEvent
	for i := 0; i < maxCaptureRetries*2; i++ {
		script = append(script, speech.CaptureEvent{Code: repositories.CaptureErrNoSpeech})
	}
	capture := speech.NewFakeCapture(script...)
	synth := &speech.FakeSynthesizer{AutoDone: true}
	a := NewAssistant(capture, synth, &stubGenerator{}, zap.NewNop())

	a.StartSession(testBot(), nil)

	waitFor(t, "bounded retry to give up", func() bool {
		return a.Snapshot().Status == entities.StatusError
	})
	if capture.Starts != maxCaptureRetries+1 {
		t.Errorf("capture starts = %d, want %d", capture.Starts, maxCaptureRetries+1)
	}
}

func TestStopSessionImmediatelyAfterStart(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &retainingSynth{}
	a := NewAssistant(capture, synth, &stubGenerator{}, zap.NewNop())

	bot := testBot()
	a.StartSession(bot, WelcomeSeed(bot))
	a.StopSession()

	snap := a.Snapshot()
	if snap.Active {
		t.Error("session still active after stop")
	}
	if len(snap.Transcript) != 0 {
		t.Errorf("transcript not cleared: %v", snap.Transcript)
	}
	if snap.Status != entities.StatusIdle {
		t.Errorf("status = %s, want IDLE", snap.Status)
	}
	if capture.Aborts == 0 {
		t.Error("capture was not aborted on stop")
	}

	// A stale utterance completion from the superseded session must be a
	// no-op.
	if cb, ok := synth.lastCallback(); ok && cb.OnDone != nil {
		cb.OnDone()
	}
	snap = a.Snapshot()
	if snap.Active || snap.Status != entities.StatusIdle || len(snap.Transcript) != 0 {
		t.Errorf("stale callback mutated state: %+v", snap)
	}
	if capture.Starts != 0 {
		t.Error("stale callback re-armed capture")
	}
}

func TestPlaybackErrorIsTurnEnding(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{FailWith: "synthesis interrupted"}
	gen := &stubGenerator{reply: entities.GeneratedReply{
		Answer: "Hello!", SpokenSummary: "Hello!", SuggestedQuestions: []string{"What can you do?"},
	}}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	bot := testBot()
	a.StartSession(bot, WelcomeSeed(bot))

	snap := a.Snapshot()
	if snap.Status != entities.StatusError {
		t.Fatalf("status = %s, want ERROR", snap.Status)
	}
	if snap.Err != msgPlaybackFailed {
		t.Errorf("error = %q", snap.Err)
	}
	if !snap.Active {
		t.Error("playback error ended the session")
	}

	// The session stays usable: a typed message starts a fresh turn.
	synth.FailWith = ""
	a.SendTextMessage("are you still there")
	waitFor(t, "reply after playback error", func() bool {
		return a.Snapshot().Status == entities.StatusSpeaking
	})
}

func TestSendTextMessageIgnoredWhenInactive(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{AutoDone: true}
	gen := &stubGenerator{}
	a := NewAssistant(capture, synth, gen, zap.NewNop())

	a.SendTextMessage("hello?")

	time.Sleep(20 * time.Millisecond)
	if gen.callCount() != 0 {
		t.Error("generator invoked without an active session")
	}
	if len(a.Snapshot().Transcript) != 0 {
		t.Error("transcript mutated without an active session")
	}
}

func TestObserverSeesStatusTransitions(t *testing.T) {
	capture := speech.NewFakeCapture()
	synth := &speech.FakeSynthesizer{}
	a := NewAssistant(capture, synth, &stubGenerator{}, zap.NewNop())

	var mu sync.Mutex
	var statuses []entities.Status
	a.SetObserver(func(s Snapshot) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})

	bot := testBot()
	a.StartSession(bot, WelcomeSeed(bot))
	synth.FinishPending()

	waitFor(t, "observer to see listening", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range statuses {
			if s == entities.StatusListening {
				return true
			}
		}
		return false
	})

	mu.Lock()
	defer mu.Unlock()
	sawSpeaking := false
	for _, s := range statuses {
		if s == entities.StatusSpeaking {
			sawSpeaking = true
		}
	}
	if !sawSpeaking {
		t.Errorf("observer never saw SPEAKING: %v", statuses)
	}
}
