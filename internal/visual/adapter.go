// Package visual derives the signals that drive the speaking-orb
// visualization from raw playback state. Consumers poll these per animation
// frame, so derivations are memoized on their inputs.
package visual

import (
	"sync"

	"github.com/satriahrh/swara/domain/entities"
)

// idleFloor is the volume reported while connected but silent, keeping the
// visualization faintly alive instead of dead.
const idleFloor = 0.1

// flowThreshold is the output level below which playback is treated as
// silence for the speaking indicator.
const flowThreshold = 0.01

// Source exposes the playback readings the adapter derives from.
// *playback.Service satisfies it.
type Source interface {
	Level() float64
	State() entities.PlaybackState
}

// Signals is one coherent set of visualization inputs.
type Signals struct {
	// EffectiveVolume is the orb intensity: 0 when disconnected, the real
	// output level while audio plays, and a small idle floor otherwise.
	EffectiveVolume float64 `json:"effective_volume"`
	// IsActuallyPlaying is true only when audio is flowing at an audible
	// level, not merely queued.
	IsActuallyPlaying bool `json:"is_actually_playing"`
	// IsThinking is true while the agent is working on a response.
	IsThinking bool `json:"is_thinking"`
}

type inputs struct {
	connected bool
	thinking  bool
	level     float64
	playing   bool
}

// Adapter converts playback readings into visualization signals.
type Adapter struct {
	source Source

	mu        sync.Mutex
	connected bool
	thinking  bool

	memoIn  inputs
	memoOut Signals
	memoOK  bool
}

// NewAdapter creates an adapter reading from source.
func NewAdapter(source Source) *Adapter {
	return &Adapter{source: source}
}

// SetConnected records the transport connection status.
func (a *Adapter) SetConnected(connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
	a.memoOK = false
}

// SetThinking records whether the agent is processing.
func (a *Adapter) SetThinking(thinking bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thinking = thinking
	a.memoOK = false
}

// Signals returns the current visualization signals.
func (a *Adapter) Signals() Signals {
	level := a.source.Level()
	playing := a.source.State().IsPlaying

	a.mu.Lock()
	defer a.mu.Unlock()
	in := inputs{connected: a.connected, thinking: a.thinking, level: level, playing: playing}
	if a.memoOK && in == a.memoIn {
		return a.memoOut
	}

	out := Signals{IsThinking: a.thinking}
	out.IsActuallyPlaying = playing && level > flowThreshold
	switch {
	case !a.connected:
		out.EffectiveVolume = 0
	case out.IsActuallyPlaying:
		out.EffectiveVolume = level
	default:
		out.EffectiveVolume = idleFloor
	}

	a.memoIn = in
	a.memoOut = out
	a.memoOK = true
	return out
}

// EffectiveVolume returns the orb intensity, 0..1.
func (a *Adapter) EffectiveVolume() float64 {
	return a.Signals().EffectiveVolume
}

// IsActuallyPlaying reports whether audio is audibly flowing.
func (a *Adapter) IsActuallyPlaying() bool {
	return a.Signals().IsActuallyPlaying
}

// IsThinking reports whether the agent is processing.
func (a *Adapter) IsThinking() bool {
	return a.Signals().IsThinking
}
