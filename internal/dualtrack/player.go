// Package dualtrack plays two pre-recorded tracks through one shared audio
// graph, kept sample-synchronized: both tracks seek together, share a
// playback rate, and mix into a single stereo output. Typical use is an
// original vocal take on track A and a generated rendition on track B, with
// independent volume faders and an optional hard left/right split for
// comparison listening.
package dualtrack

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/domain/repositories"
)

// Track selects one of the player's two tracks.
type Track int

const (
	TrackA Track = iota
	TrackB
)

// volumeHeadroom scales the cubic fader curve so the top of the fader can
// push a quiet source well above unity.
const volumeHeadroom = 4.0

// blockDuration is the mixer's write granularity.
const blockDuration = 20 * time.Millisecond

// bindings tracks which player each source is bound to. A source can feed
// exactly one graph at a time.
var (
	bindingsMu sync.Mutex
	bindings   = map[repositories.TrackSource]*Player{}
)

type trackState struct {
	source    repositories.TrackSource
	stretch   *stretcher
	level     float64 // fader position 0..1
	pan       float64 // -1 left .. +1 right
	exhausted bool
}

// Player mixes two synchronized tracks into a stereo sink.
type Player struct {
	sink   repositories.AudioSink
	logger *zap.Logger

	mu      sync.Mutex
	tracks  [2]*trackState
	bound   bool
	playing bool
	stereo  bool
	rate    float64
	closed  bool

	stop chan struct{}
	done chan struct{}
}

// NewPlayer creates an unbound player writing to sink.
func NewPlayer(sink repositories.AudioSink, logger *zap.Logger) *Player {
	return &Player{
		sink:   sink,
		logger: logger,
		rate:   1.0,
	}
}

// Bind attaches sources a and b as tracks A and B, building the audio graph.
// Calling Bind again with the same pair is a no-op and reuses the existing
// graph. A source already feeding another player returns ErrSourceBound.
func (p *Player) Bind(a, b repositories.TrackSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("bind: player closed")
	}
	if p.bound {
		if p.tracks[TrackA].source == a && p.tracks[TrackB].source == b {
			return nil
		}
		return fmt.Errorf("bind: %w", entities.ErrSourceBound)
	}

	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	for _, src := range []repositories.TrackSource{a, b} {
		if owner, ok := bindings[src]; ok && owner != p {
			return fmt.Errorf("bind: %w", entities.ErrSourceBound)
		}
	}
	bindings[a] = p
	bindings[b] = p

	p.tracks[TrackA] = &trackState{source: a, stretch: newStretcher(a), level: 1.0}
	p.tracks[TrackB] = &trackState{source: b, stretch: newStretcher(b), level: 1.0}
	p.bound = true
	return nil
}

// Play starts (or resumes) synchronized playback of both tracks. If the mixer
// cannot start after the sink was resumed, the sink is suspended again so a
// failed start leaves nothing half-running.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.bound {
		return fmt.Errorf("play: no sources bound")
	}
	if p.playing {
		return nil
	}

	resumed := false
	if p.sink.State() == entities.ContextStateSuspended {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.sink.Resume(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("play: resume sink: %w", err)
		}
		resumed = true
	}
	if p.sink.State() != entities.ContextStateRunning {
		if resumed {
			if err := p.sink.Suspend(); err != nil {
				p.logger.Warn("Failed to roll back sink resume", zap.Error(err))
			}
		}
		return fmt.Errorf("play: sink not running (%s)", p.sink.State())
	}

	p.playing = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.pump(p.stop, p.done)
	return nil
}

// Pause halts playback, keeping positions and the graph intact.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done
}

// IsPlaying reports whether the mixer is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetVolume moves a track's fader. The fader position maps to gain through a
// cubic curve scaled by headroom, so small positions give fine control and
// the top of the travel reaches 4x unity. Position 0 is exact silence.
func (p *Player) SetVolume(track Track, level float64) {
	level = clamp(level, 0, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tracks[track] != nil {
		p.tracks[track].level = level
	}
}

// Volume returns a track's fader position, 0..1.
func (p *Player) Volume(track Track) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tracks[track] == nil {
		return 0
	}
	return p.tracks[track].level
}

// Gain returns the effective gain a fader position produces.
func Gain(level float64) float64 {
	level = clamp(level, 0, 1)
	if level == 0 {
		return 0
	}
	return level * level * level * volumeHeadroom
}

// SetStereoSplit toggles comparison panning: on, track A goes hard left and
// track B hard right; off, both sit center.
func (p *Player) SetStereoSplit(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stereo = on
	if p.tracks[TrackA] == nil {
		return
	}
	if on {
		p.tracks[TrackA].pan = -1
		p.tracks[TrackB].pan = 1
	} else {
		p.tracks[TrackA].pan = 0
		p.tracks[TrackB].pan = 0
	}
}

// StereoSplit reports whether comparison panning is on.
func (p *Player) StereoSplit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stereo
}

// Seek moves both tracks to offset, keeping them aligned. Offsets are
// clamped to [0, Duration]; the shorter track clamps to its own end.
func (p *Player) Seek(offset time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.bound {
		return
	}
	offset = clampDuration(offset, 0, p.durationLocked())
	for _, t := range p.tracks {
		t.source.Seek(offset)
		t.exhausted = false
	}
}

// SetRate changes the shared playback rate for BOTH tracks. With
// preservePitch the tracks are time-stretched; without it they are
// resampled and pitch shifts with the rate.
func (p *Player) SetRate(rate float64, preservePitch bool) error {
	if rate <= 0 {
		return fmt.Errorf("set rate: rate must be positive, got %f", rate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	for _, t := range p.tracks {
		if t != nil {
			t.stretch.setRate(rate, preservePitch)
		}
	}
	return nil
}

// Rate returns the shared playback rate.
func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// CurrentTime returns the playback position: the furthest position of the
// two tracks, so the clock keeps moving while the longer track plays out.
func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.bound {
		return 0
	}
	a := p.tracks[TrackA].source.Position()
	b := p.tracks[TrackB].source.Position()
	if a > b {
		return a
	}
	return b
}

// Duration returns the longer of the two track durations.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationLocked()
}

// Close stops playback and releases the sources for rebinding elsewhere.
func (p *Player) Close() error {
	p.Pause()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.bound {
		bindingsMu.Lock()
		delete(bindings, p.tracks[TrackA].source)
		delete(bindings, p.tracks[TrackB].source)
		bindingsMu.Unlock()
		p.bound = false
	}
	return nil
}

func (p *Player) durationLocked() time.Duration {
	if !p.bound {
		return 0
	}
	a := p.tracks[TrackA].source.Duration()
	b := p.tracks[TrackB].source.Duration()
	if a > b {
		return a
	}
	return b
}

// pump is the mixer loop: every block it pulls a frame from each track,
// applies fader gain and pan, sums into interleaved stereo and writes to the
// sink, pacing itself against the wall clock.
func (p *Player) pump(stop, done chan struct{}) {
	defer close(done)

	sampleRate := p.sink.SampleRate()
	blockFrames := int(time.Duration(sampleRate) * blockDuration / time.Second)
	mono := make([]int16, blockFrames)
	mix := make([]float64, blockFrames*2)
	out := make([]byte, blockFrames*4)

	next := time.Now()
	for {
		select {
		case <-stop:
			return
		default:
		}

		for i := range mix {
			mix[i] = 0
		}

		p.mu.Lock()
		live := 0
		for _, t := range p.tracks {
			if t.exhausted {
				continue
			}
			n := t.stretch.read(mono)
			if n == 0 {
				t.exhausted = true
				continue
			}
			live++
			gain := Gain(t.level)
			left, right := panGains(t.pan)
			for i := 0; i < n; i++ {
				v := float64(mono[i]) * gain
				mix[i*2] += v * left
				mix[i*2+1] += v * right
			}
		}
		bothDone := p.tracks[TrackA].exhausted && p.tracks[TrackB].exhausted
		if bothDone {
			p.playing = false
		}
		p.mu.Unlock()

		if bothDone {
			return
		}
		if live > 0 {
			for i, v := range mix {
				binary.LittleEndian.PutUint16(out[i*2:], uint16(clampSample(v)))
			}
			if err := p.sink.Write(out); err != nil {
				p.logger.Warn("Dropping mixer block after sink failure", zap.Error(err))
			}
		}

		next = next.Add(blockDuration)
		if d := time.Until(next); d > 0 {
			select {
			case <-stop:
				return
			case <-time.After(d):
			}
		} else {
			next = time.Now()
		}
	}
}

// panGains maps a pan position to equal-power left/right gains.
func panGains(pan float64) (left, right float64) {
	theta := (pan + 1) / 2 * math.Pi / 2
	return math.Cos(theta), math.Sin(theta)
}

func clampSample(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
