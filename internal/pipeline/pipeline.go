// Package pipeline owns per-message buffering state for streamed agent
// audio. It sequences chunks per message session, forwards in-order runs to
// the output service, and records lifecycle events for diagnostics.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/internal/metrics"
)

// Output consumes in-order audio chunks for scheduling. Implemented by the
// playback service.
type Output interface {
	EnqueueChunk(chunk entities.AudioChunk) error
}

// Config holds pipeline construction parameters.
type Config struct {
	// SampleRate is the PCM sample rate used to estimate chunk durations.
	SampleRate int
	// HistoryCapacity bounds the diagnostics event ring. Zero uses the
	// entities default.
	HistoryCapacity int
	// IdleTimeout closes sessions with no activity. Zero defaults to 30s.
	IdleTimeout time.Duration
}

// Pipeline tracks message sessions and their chunk sequencing.
type Pipeline struct {
	output  Output
	logger  *zap.Logger
	metrics *metrics.Metrics
	history *entities.EventHistory

	sampleRate  int
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*entities.MessageSession
	// outstanding counts chunks forwarded to the output service that have
	// not yet finished (or been cancelled) per message.
	outstanding map[string]int
	// closedIDs remembers recently closed messages so a re-delivered
	// completion cannot resurrect a finished session.
	closedIDs   map[string]struct{}
	closedOrder []string

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a pipeline forwarding in-order chunks to output. A background
// routine reaps idle sessions until Close is called.
func New(output Output, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	p := &Pipeline{
		output:      output,
		logger:      logger,
		metrics:     m,
		history:     entities.NewEventHistory(cfg.HistoryCapacity),
		sampleRate:  cfg.SampleRate,
		idleTimeout: cfg.IdleTimeout,
		sessions:    make(map[string]*entities.MessageSession),
		outstanding: make(map[string]int),
		closedIDs:   make(map[string]struct{}),
		stop:        make(chan struct{}),
	}
	go p.reapIdleSessions()
	return p
}

// StartSession opens (or touches) the session for messageID in response to a
// buffer-start control signal and emits a playback_started event.
func (p *Pipeline) StartSession(messageID string) {
	p.mu.Lock()
	session := p.sessionLocked(messageID)
	session.Begin()
	p.mu.Unlock()

	p.emit(entities.AudioEvent{Kind: entities.EventPlaybackStarted, MessageID: messageID})
	p.logger.Debug("Message session started", zap.String("messageID", messageID))
}

// EndSession records a buffer-stop control signal for messageID and emits a
// playback_ended event. Buffered chunks stay playable until the session
// drains.
func (p *Pipeline) EndSession(messageID string) {
	p.emit(entities.AudioEvent{Kind: entities.EventPlaybackEnded, MessageID: messageID})
	p.logger.Debug("Message session buffer stopped", zap.String("messageID", messageID))
}

// ProcessChunk appends decoded PCM to the message's session and forwards any
// now-contiguous run of chunks to the output service for scheduling.
func (p *Pipeline) ProcessChunk(messageID string, pcm []byte, sequence int) error {
	chunk := entities.NewAudioChunk(messageID, sequence, pcm, p.sampleRate)

	p.mu.Lock()
	session := p.sessionLocked(messageID)
	run, err := session.Add(chunk)
	pending := session.PendingChunks()
	if err == nil {
		p.outstanding[messageID] += len(run)
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("process chunk %d for message %s: %w", sequence, messageID, err)
	}

	p.emit(entities.AudioEvent{Kind: entities.EventChunkReceived, MessageID: messageID, Sequence: sequence})
	if p.metrics != nil {
		p.metrics.ChunksProcessed.Inc()
		p.metrics.ChunksBuffered.Set(float64(pending))
		p.metrics.ChunkDuration.Observe(chunk.EstimatedDuration.Seconds())
	}

	for _, ready := range run {
		if err := p.output.EnqueueChunk(ready); err != nil {
			// One bad chunk must not halt the stream; account for it and
			// move on.
			p.chunkSettled(messageID)
			p.emit(entities.AudioEvent{
				Kind:      entities.EventPlaybackError,
				MessageID: messageID,
				Sequence:  ready.Sequence,
				Detail:    err.Error(),
			})
			p.logger.Warn("Failed to enqueue chunk for playback",
				zap.String("messageID", messageID),
				zap.Int("sequence", ready.Sequence),
				zap.Error(err))
		}
	}
	return nil
}

// CompleteMessage marks the session complete. Idempotent: only the first
// call emits a message_complete event. A completion that outruns its chunks
// opens the session in advance, so the stragglers still play and drain;
// completion of an already closed message is ignored.
func (p *Pipeline) CompleteMessage(messageID string) {
	p.mu.Lock()
	session, ok := p.sessions[messageID]
	if !ok {
		if _, closed := p.closedIDs[messageID]; closed {
			p.mu.Unlock()
			return
		}
		session = p.sessionLocked(messageID)
	}
	transitioned := session.Complete()
	// Only a session that actually released audio can drain here; a fresh
	// session completed ahead of its chunks stays open for them.
	drained := session.Drained() && p.outstanding[messageID] == 0 && session.ReleasedChunks() > 0
	if drained {
		session.BeginDrain()
	}
	p.mu.Unlock()

	if !transitioned {
		return
	}
	p.emit(entities.AudioEvent{Kind: entities.EventMessageComplete, MessageID: messageID})
	p.logger.Debug("Message complete", zap.String("messageID", messageID))

	if drained {
		p.closeSession(messageID)
	}
}

// ChunkDone is called by the output service when a forwarded chunk finished
// playing or was cancelled. It drives the Draining → Closed transition.
func (p *Pipeline) ChunkDone(messageID string, sequence int, cancelled bool) {
	if cancelled {
		p.emit(entities.AudioEvent{Kind: entities.EventChunkCancelled, MessageID: messageID, Sequence: sequence})
	}

	p.mu.Lock()
	session, ok := p.sessions[messageID]
	p.chunkSettledLocked(messageID)
	drained := ok && session.Drained() && p.outstanding[messageID] == 0
	if drained {
		session.BeginDrain()
	}
	p.mu.Unlock()

	if drained {
		p.closeSession(messageID)
	}
}

// Reset closes every open session, dropping buffered chunks. Used on
// disconnect and user-initiated stop.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.closeSession(id)
	}
}

// History returns a snapshot of recent lifecycle events, oldest first.
func (p *Pipeline) History() []entities.AudioEvent {
	return p.history.Snapshot()
}

// Emit records an externally produced lifecycle event (decode failures
// detected by the router, for example) into the shared history.
func (p *Pipeline) Emit(ev entities.AudioEvent) {
	p.emit(ev)
}

// SessionCount returns the number of open sessions.
func (p *Pipeline) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// SessionStates returns a serializable snapshot of open sessions.
func (p *Pipeline) SessionStates() map[string]entities.SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]entities.SessionState, len(p.sessions))
	for id, s := range p.sessions {
		out[id] = s.State
	}
	return out
}

// Close stops the idle-session reaper and resets all sessions.
func (p *Pipeline) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.Reset()
}

func (p *Pipeline) sessionLocked(messageID string) *entities.MessageSession {
	session, ok := p.sessions[messageID]
	if !ok {
		session = entities.NewMessageSession(messageID)
		p.sessions[messageID] = session
		if p.metrics != nil {
			p.metrics.ActiveSessions.Set(float64(len(p.sessions)))
		}
	}
	return session
}

func (p *Pipeline) closeSession(messageID string) {
	p.mu.Lock()
	session, ok := p.sessions[messageID]
	if ok {
		session.Close()
		delete(p.sessions, messageID)
		delete(p.outstanding, messageID)
		p.rememberClosedLocked(messageID)
		if p.metrics != nil {
			p.metrics.ActiveSessions.Set(float64(len(p.sessions)))
			p.metrics.SessionsClosed.Inc()
		}
	}
	p.mu.Unlock()

	if ok {
		p.emit(entities.AudioEvent{Kind: entities.EventSessionClosed, MessageID: messageID})
		p.logger.Debug("Message session closed", zap.String("messageID", messageID))
	}
}

// closedIDLimit bounds the remembered closed-message set.
const closedIDLimit = 64

func (p *Pipeline) rememberClosedLocked(messageID string) {
	if _, ok := p.closedIDs[messageID]; ok {
		return
	}
	p.closedIDs[messageID] = struct{}{}
	p.closedOrder = append(p.closedOrder, messageID)
	if len(p.closedOrder) > closedIDLimit {
		oldest := p.closedOrder[0]
		p.closedOrder = p.closedOrder[1:]
		delete(p.closedIDs, oldest)
	}
}

func (p *Pipeline) chunkSettled(messageID string) {
	p.mu.Lock()
	p.chunkSettledLocked(messageID)
	p.mu.Unlock()
}

func (p *Pipeline) chunkSettledLocked(messageID string) {
	if p.outstanding[messageID] > 0 {
		p.outstanding[messageID]--
	}
}

func (p *Pipeline) emit(ev entities.AudioEvent) {
	p.history.Append(ev)
}

// reapIdleSessions closes sessions with no activity past the idle timeout.
func (p *Pipeline) reapIdleSessions() {
	ticker := time.NewTicker(p.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			now := time.Now()
			p.mu.Lock()
			var expired []string
			for id, session := range p.sessions {
				if now.Sub(session.LastActiveAt) > p.idleTimeout {
					expired = append(expired, id)
				}
			}
			p.mu.Unlock()

			for _, id := range expired {
				p.logger.Info("Closing idle message session", zap.String("messageID", id))
				p.closeSession(id)
			}
		}
	}
}
