package visual

import (
	"testing"

	"github.com/satriahrh/swara/domain/entities"
)

type stubSource struct {
	level   float64
	playing bool
	reads   int
}

func (s *stubSource) Level() float64 {
	s.reads++
	return s.level
}

func (s *stubSource) State() entities.PlaybackState {
	return entities.PlaybackState{IsPlaying: s.playing}
}

func TestEffectiveVolumeDisconnected(t *testing.T) {
	src := &stubSource{level: 0.8, playing: true}
	a := NewAdapter(src)

	if got := a.EffectiveVolume(); got != 0 {
		t.Errorf("Expected volume 0 while disconnected, got %f", got)
	}
}

func TestEffectiveVolumeWhilePlaying(t *testing.T) {
	src := &stubSource{level: 0.8, playing: true}
	a := NewAdapter(src)
	a.SetConnected(true)

	if got := a.EffectiveVolume(); got != 0.8 {
		t.Errorf("Expected the real level while playing, got %f", got)
	}
}

func TestEffectiveVolumeIdleFloor(t *testing.T) {
	src := &stubSource{level: 0, playing: false}
	a := NewAdapter(src)
	a.SetConnected(true)

	if got := a.EffectiveVolume(); got != idleFloor {
		t.Errorf("Expected idle floor %f while connected and silent, got %f", idleFloor, got)
	}
}

func TestIsActuallyPlayingRequiresAudibleLevel(t *testing.T) {
	src := &stubSource{level: 0.005, playing: true}
	a := NewAdapter(src)
	a.SetConnected(true)

	if a.IsActuallyPlaying() {
		t.Error("Expected inaudible playback not to count as actually playing")
	}
	// And the idle floor applies instead of the sub-threshold level.
	if got := a.EffectiveVolume(); got != idleFloor {
		t.Errorf("Expected idle floor for inaudible playback, got %f", got)
	}

	src.level = 0.5
	if !a.IsActuallyPlaying() {
		t.Error("Expected audible playback to count as actually playing")
	}

	src.playing = false
	if a.IsActuallyPlaying() {
		t.Error("Expected a hot level without flowing audio not to count")
	}
}

func TestIsThinking(t *testing.T) {
	a := NewAdapter(&stubSource{})
	if a.IsThinking() {
		t.Error("Expected thinking false by default")
	}
	a.SetThinking(true)
	if !a.IsThinking() {
		t.Error("Expected thinking true after SetThinking")
	}
}

func TestSignalsMemoized(t *testing.T) {
	src := &stubSource{level: 0.8, playing: true}
	a := NewAdapter(src)
	a.SetConnected(true)

	first := a.Signals()
	second := a.Signals()
	if first != second {
		t.Errorf("Expected identical signals for unchanged inputs, got %+v then %+v", first, second)
	}

	src.level = 0.2
	changed := a.Signals()
	if changed.EffectiveVolume != 0.2 {
		t.Errorf("Expected memo invalidation on level change, got %+v", changed)
	}
}
