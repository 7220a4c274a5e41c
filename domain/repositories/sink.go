package repositories

import (
	"context"

	"github.com/satriahrh/swara/domain/entities"
)

// AudioSink abstracts the platform audio output device. At most one live
// sink may exist per process; acquisition is mediated by the playback
// service's acquire-if-absent factory, never by callers creating sinks
// directly.
type AudioSink interface {
	// Write appends 16-bit mono PCM to the device buffer. Playback of the
	// written bytes begins immediately after any previously written bytes,
	// back to back.
	Write(pcm []byte) error

	// Resume moves a suspended context into running. It blocks until the
	// device is ready or the context is cancelled; callers must await it
	// before issuing playback writes.
	Resume(ctx context.Context) error

	// Suspend pauses the device without releasing it.
	Suspend() error

	// State reports the current platform context state.
	State() entities.ContextState

	// SampleRate returns the device sample rate in Hz.
	SampleRate() int

	// Close releases the device. The sink is unusable afterwards.
	Close() error
}
