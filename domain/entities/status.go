package entities

// Status is the lifecycle state of an assistant session.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusListening Status = "LISTENING"
	StatusThinking  Status = "THINKING"
	StatusSpeaking  Status = "SPEAKING"
	StatusError     Status = "ERROR"
)
