package repositories

import "time"

// TrackSource is a pre-recorded, seekable PCM audio source consumed by the
// dual-track player. Implementations return 16-bit mono PCM frames at the
// source's native sample rate.
type TrackSource interface {
	// ReadFrame copies up to len(dst) samples starting at the current
	// position and advances it. It returns the number of samples copied;
	// zero past the end of the source.
	ReadFrame(dst []int16) int

	// Seek positions the source at the given offset from the start. Offsets
	// beyond the source duration clamp to the end.
	Seek(offset time.Duration)

	// Position returns the current offset from the start.
	Position() time.Duration

	// Duration returns the total source duration.
	Duration() time.Duration

	// SampleRate returns the source sample rate in Hz.
	SampleRate() int
}
