// Package speaker implements the platform audio sink on top of oto.
package speaker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/satriahrh/swara/domain/entities"
)

// DefaultSampleRate matches the agent's PCM stream.
const DefaultSampleRate = 24000

// bufferedBytes sizes the device buffer.
// At 24kHz mono 16-bit: 4800 bytes = 100ms of audio.
const bufferedBytes = 4800

var (
	contextOnce sync.Once
	contextErr  error
	sharedCtx   *oto.Context
)

// Sink writes PCM to the speaker through a shared oto context. The hardware
// context is process-wide and created once; Sink instances layer players on
// top of it.
type Sink struct {
	otoCtx     *oto.Context
	player     *oto.Player
	sampleRate int
	channels   int

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	state  entities.ContextState
	closed bool
}

// New opens a sink at the given rate and channel count. The first call
// initializes the hardware context and blocks until the device is ready;
// later calls reuse it, so rate and channels must match across sinks.
func New(sampleRate, channels int) (*Sink, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}

	contextOnce.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   bufferedBytes,
		}
		ctx, ready, err := oto.NewContext(opts)
		if err != nil {
			contextErr = fmt.Errorf("open audio context: %w", err)
			return
		}
		<-ready
		sharedCtx = ctx
	})
	if contextErr != nil {
		return nil, contextErr
	}

	s := &Sink{
		otoCtx:     sharedCtx,
		sampleRate: sampleRate,
		channels:   channels,
		state:      entities.ContextStateRunning,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write appends PCM to the playback buffer. The player is created lazily on
// the first write so an idle sink holds no device slot.
func (s *Sink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	if s.state == entities.ContextStateSuspended {
		return fmt.Errorf("sink suspended")
	}

	s.buf = append(s.buf, pcm...)
	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player, pulling buffered PCM.
func (s *Sink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Resume brings a suspended context back to running and blocks until the
// device accepts it.
func (s *Sink) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	if s.state == entities.ContextStateRunning {
		return nil
	}
	if err := s.otoCtx.Resume(); err != nil {
		return fmt.Errorf("resume audio context: %w", err)
	}
	s.state = entities.ContextStateRunning
	return nil
}

// Suspend pauses the device without releasing it.
func (s *Sink) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	if s.state == entities.ContextStateSuspended {
		return nil
	}
	if err := s.otoCtx.Suspend(); err != nil {
		return fmt.Errorf("suspend audio context: %w", err)
	}
	s.state = entities.ContextStateSuspended
	return nil
}

// State reports the platform context state.
func (s *Sink) State() entities.ContextState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SampleRate returns the device sample rate in Hz.
func (s *Sink) SampleRate() int {
	return s.sampleRate
}

// Close releases the player. The shared hardware context stays open for the
// life of the process.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = entities.ContextStateClosed
	player := s.player
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}
