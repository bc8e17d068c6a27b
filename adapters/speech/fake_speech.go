// Package speech provides deterministic in-process implementations of the
// capture and synthesis capabilities. They stand in for a real client during
// tests and local development: scripted capture events play back on demand
// and synthesis completes synchronously or under test control.
package speech

import (
	"errors"
	"sync"

	"github.com/lordofthechatbot/server/domain/repositories"
)

// CaptureEvent is one scripted outcome of a capture attempt. Exactly one of
// Text, End or Code should be set.
type CaptureEvent struct {
	Text    string
	End     bool
	Code    repositories.CaptureErrorCode
	Message string
}

// FakeCapture implements repositories.SpeechCapture with a scripted event
// queue. Each Start consumes and delivers the next event synchronously; an
// empty queue leaves the capture armed and silent.
type FakeCapture struct {
	mu     sync.Mutex
	cb     repositories.CaptureCallbacks
	script []CaptureEvent

	Starts int
	Stops  int
	Aborts int
	armed  bool
}

// NewFakeCapture creates a capture double with the given scripted events.
func NewFakeCapture(script ...CaptureEvent) *FakeCapture {
	return &FakeCapture{script: script}
}

// Push appends events to the script.
func (f *FakeCapture) Push(events ...CaptureEvent) {
	f.mu.Lock()
	f.script = append(f.script, events...)
	f.mu.Unlock()
}

func (f *FakeCapture) SetCallbacks(cb repositories.CaptureCallbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.armed {
		f.mu.Unlock()
		return errors.New("capture already armed")
	}
	f.Starts++
	if len(f.script) == 0 {
		f.armed = true
		f.mu.Unlock()
		return nil
	}
	ev := f.script[0]
	f.script = f.script[1:]
	cb := f.cb
	f.mu.Unlock()

	// Delivered outside the lock so handlers may re-enter Start.
	switch {
	case ev.Code != "":
		if cb.OnError != nil {
			cb.OnError(ev.Code, ev.Message)
		}
	case ev.End:
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	default:
		if cb.OnResult != nil {
			cb.OnResult(ev.Text)
		}
	}
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.Stops++
	f.armed = false
	f.mu.Unlock()
}

func (f *FakeCapture) Abort() {
	f.mu.Lock()
	f.Aborts++
	f.armed = false
	f.mu.Unlock()
}

// FakeSynthesizer implements repositories.SpeechSynthesizer. With AutoDone
// set, Speak invokes OnDone synchronously; otherwise the utterance stays
// pending until FinishPending or Cancel. Cancel suppresses the pending
// utterance's callbacks, matching the cancel-then-speak contract.
type FakeSynthesizer struct {
	mu      sync.Mutex
	pending *repositories.SynthCallbacks

	AutoDone bool
	FailWith string

	Spoken  []string
	Cancels int
}

func (f *FakeSynthesizer) Speak(text string, cb repositories.SynthCallbacks) {
	f.mu.Lock()
	f.Spoken = append(f.Spoken, text)
	auto := f.AutoDone
	fail := f.FailWith
	if !auto && fail == "" {
		f.pending = &cb
	}
	f.mu.Unlock()

	if fail != "" {
		if cb.OnError != nil {
			cb.OnError(fail)
		}
		return
	}
	if auto && cb.OnDone != nil {
		cb.OnDone()
	}
}

func (f *FakeSynthesizer) Cancel() {
	f.mu.Lock()
	f.Cancels++
	f.pending = nil
	f.mu.Unlock()
}

// FinishPending completes the pending utterance, if any, and reports whether
// one was completed.
func (f *FakeSynthesizer) FinishPending() bool {
	f.mu.Lock()
	cb := f.pending
	f.pending = nil
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	if cb.OnDone != nil {
		cb.OnDone()
	}
	return true
}

// HasPending reports whether an utterance is awaiting completion.
func (f *FakeSynthesizer) HasPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}
