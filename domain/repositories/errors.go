package repositories

import "errors"

// Common errors for repository operations.
var (
	ErrBotNotFound = errors.New("bot not found")
)

// GenerationError is a failure of the response generator: transport, auth or
// a malformed structured response. The caller recovers locally with a
// fallback message.
type GenerationError struct {
	Cause string
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Cause
}

// NewGenerationError wraps a human-readable cause.
func NewGenerationError(cause string) *GenerationError {
	return &GenerationError{Cause: cause}
}

// ConfigurationError signals missing operator configuration, such as an
// absent API credential. It is surfaced distinctly so the operator knows to
// configure access rather than retry.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
