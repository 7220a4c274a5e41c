package entities

import (
	"errors"
	"fmt"
)

// Error taxonomy for the audio pipeline. Decode and chunk errors are caught
// at the router/pipeline boundary and skipped; only connection-level
// failures escalate to a user-visible disconnected state.
var (
	// ErrDecode indicates a malformed base64 audio payload.
	ErrDecode = errors.New("malformed audio payload")

	// ErrInvalidPayload indicates a payload of an unsupported type.
	ErrInvalidPayload = errors.New("invalid payload type")

	// ErrMalformedChunk indicates an audio_chunk message with neither a
	// payload nor valid control-signal metadata.
	ErrMalformedChunk = errors.New("chunk has no payload and no control signal")

	// ErrSourceBound indicates an attempt to bind a media source into an
	// audio graph it is already bound to.
	ErrSourceBound = errors.New("media source already bound to audio graph")

	// ErrConnectTimeout indicates that connection establishment exceeded its
	// bounded wait.
	ErrConnectTimeout = errors.New("connection establishment timed out")
)

// PlaybackError wraps a platform playback failure with chunk context so the
// offending chunk can be logged and skipped without halting the stream.
type PlaybackError struct {
	MessageID string
	Sequence  int
	Err       error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback failed for message %s chunk %d: %v", e.MessageID, e.Sequence, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
