// Package playback schedules decoded audio chunks onto the platform audio
// sink. Chunks are queued and written back-to-back, each one scheduled at the
// estimated end of the previous one, so a continuous stream plays without
// gaps even when chunks arrive in bursts.
package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/domain/repositories"
	"github.com/satriahrh/swara/internal/metrics"
)

// SinkFactory opens the platform audio sink. It is invoked at most once, on
// the first chunk; the sink is a process-wide resource and is reused for the
// life of the service.
type SinkFactory func() (repositories.AudioSink, error)

// ChunkListener is notified when a queued chunk finishes playing or is
// cancelled before completing.
type ChunkListener func(messageID string, sequence int, cancelled bool)

// Service owns the output queue and the audio sink.
type Service struct {
	factory SinkFactory
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	sink      repositories.AudioSink
	queue     []entities.AudioChunk
	cond      *sync.Cond
	closed    bool
	interrupt chan struct{}

	isPlaying bool
	currentID string
	lastSeq   int
	level     float64

	listener ChunkListener
}

// New creates a playback service. The sink is acquired lazily from factory on
// the first enqueued chunk. A single worker goroutine drains the queue until
// Close is called.
func New(factory SinkFactory, logger *zap.Logger, m *metrics.Metrics) *Service {
	s := &Service{
		factory:   factory,
		logger:    logger,
		metrics:   m,
		interrupt: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// SetChunkListener installs the completion callback. Must be called before
// the first chunk is enqueued.
func (s *Service) SetChunkListener(fn ChunkListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// EnqueueChunk appends a chunk to the output queue.
func (s *Service) EnqueueChunk(chunk entities.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("playback service closed")
	}
	s.queue = append(s.queue, chunk)
	s.cond.Signal()
	return nil
}

// Stop cancels all pending chunks and interrupts the one currently playing.
// Each cancelled chunk is reported to the listener so lifecycle events stay
// accurate.
func (s *Service) Stop() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	close(s.interrupt)
	s.interrupt = make(chan struct{})
	listener := s.listener
	s.mu.Unlock()

	for _, chunk := range pending {
		s.logger.Debug("Cancelled pending chunk",
			zap.String("messageID", chunk.MessageID),
			zap.Int("sequence", chunk.Sequence))
		if s.metrics != nil {
			s.metrics.ChunksCancelled.Inc()
		}
		if listener != nil {
			listener(chunk.MessageID, chunk.Sequence, true)
		}
	}
}

// Level returns the output level of the chunk being played, 0..1. It reads 0
// whenever nothing is playing.
func (s *Service) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isPlaying {
		return 0
	}
	return s.level
}

// State returns a snapshot of the output queue.
func (s *Service) State() entities.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := entities.PlaybackState{
		QueueLength:      len(s.queue),
		IsPlaying:        s.isPlaying,
		CurrentMessageID: s.currentID,
		LastSequence:     s.lastSeq,
		ContextState:     entities.ContextStateClosed,
	}
	if s.sink != nil {
		st.ContextState = s.sink.State()
	} else if !s.closed {
		// Sink not acquired yet; report suspended rather than closed so
		// callers know playback can still start.
		st.ContextState = entities.ContextStateSuspended
	}
	return st
}

// Close stops the worker and releases the sink.
func (s *Service) Close() error {
	s.Stop()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sink := s.sink
	s.cond.Broadcast()
	s.mu.Unlock()

	if sink != nil {
		return sink.Close()
	}
	return nil
}

func (s *Service) run() {
	for {
		chunk, ok := s.next()
		if !ok {
			return
		}
		s.play(chunk)
	}
}

// next blocks until a chunk is available or the service closes.
func (s *Service) next() (entities.AudioChunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		// Nothing queued: the stream has drained.
		if s.currentID != "" || s.isPlaying {
			s.isPlaying = false
			s.currentID = ""
			s.level = 0
		}
		s.cond.Wait()
	}
	if s.closed {
		return entities.AudioChunk{}, false
	}
	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk, true
}

// play writes one chunk to the sink and holds the slot for its estimated
// duration, which is what makes consecutive chunks gapless. A failure on one
// chunk is logged and the stream moves on.
func (s *Service) play(chunk entities.AudioChunk) {
	s.mu.Lock()
	interrupt := s.interrupt
	listener := s.listener
	s.mu.Unlock()

	sink, err := s.acquireSink()
	if err == nil && sink.State() == entities.ContextStateSuspended {
		// The platform can hand back a suspended context; playback before
		// resume completes is silently dropped, so the resume is awaited.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = sink.Resume(ctx)
		cancel()
	}
	if err == nil {
		s.mu.Lock()
		s.isPlaying = true
		s.currentID = chunk.MessageID
		s.lastSeq = chunk.Sequence
		s.level = rmsLevel(chunk.Bytes)
		s.mu.Unlock()
		err = sink.Write(chunk.Bytes)
	}

	if err != nil {
		perr := &entities.PlaybackError{MessageID: chunk.MessageID, Sequence: chunk.Sequence, Err: err}
		s.logger.Warn("Skipping chunk after playback failure", zap.Error(perr))
		if s.metrics != nil {
			s.metrics.PlaybackErrors.Inc()
		}
		if listener != nil {
			listener(chunk.MessageID, chunk.Sequence, false)
		}
		return
	}

	cancelled := false
	timer := time.NewTimer(chunk.EstimatedDuration)
	select {
	case <-timer.C:
	case <-interrupt:
		timer.Stop()
		cancelled = true
		s.logger.Debug("Interrupted chunk mid-play",
			zap.String("messageID", chunk.MessageID),
			zap.Int("sequence", chunk.Sequence))
	}

	if s.metrics != nil {
		if cancelled {
			s.metrics.ChunksCancelled.Inc()
		} else {
			s.metrics.ChunksPlayed.Inc()
		}
	}
	if listener != nil {
		listener(chunk.MessageID, chunk.Sequence, cancelled)
	}
}

// acquireSink opens the sink on first use.
func (s *Service) acquireSink() (repositories.AudioSink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil {
		return s.sink, nil
	}
	sink, err := s.factory()
	if err != nil {
		return nil, err
	}
	s.sink = sink
	return sink, nil
}

// rmsLevel computes the normalized RMS level of 16-bit little-endian mono
// PCM, 0..1.
func rmsLevel(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
