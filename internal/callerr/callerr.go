// Package callerr defines the behavioral error taxonomy shared by the
// segmenter, router, and orchestrator. Failures are modeled as tagged
// values rather than distinguished by type, so that propagation policy
// (drop utterance, degrade, disconnect, tear down) can be decided by a
// single switch over Kind instead of type assertions scattered through
// the pipeline.
package callerr

import (
	"errors"
	"fmt"
)

// Kind is a behavioral classification of a failure. It says what the
// rest of the system must do about the error, not where it came from.
type Kind string

const (
	// KindRecognitionUnavailable: STT adapter failed or timed out.
	// The current utterance is dropped; only the speaker is notified.
	KindRecognitionUnavailable Kind = "recognition_unavailable"

	// KindTranslationUnavailable: MT adapter failed or timed out.
	// The final result still ships with the original text and degraded=true.
	KindTranslationUnavailable Kind = "translation_unavailable"

	// KindSynthesisUnavailable: TTS adapter failed or timed out.
	// The final result ships text-only, audio payload omitted.
	KindSynthesisUnavailable Kind = "synthesis_unavailable"

	// KindSlowConsumer: a listener's outbound queue saturated even after
	// dropping interims and truncating audio. The listener is disconnected.
	KindSlowConsumer Kind = "slow_consumer"

	// KindUnauthorized: admission was refused.
	KindUnauthorized Kind = "unauthorized"

	// KindProtocol: malformed JSON, unknown verb, or an invalid frame.
	KindProtocol Kind = "protocol"

	// KindSessionEnded: the session is terminal; nothing more is accepted.
	KindSessionEnded Kind = "session_ended"
)

// Error pairs a Kind with a human-readable message and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, if it is (or wraps) a tagged Error.
func KindOf(err error) (Kind, bool) {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind, true
	}
	return "", false
}
