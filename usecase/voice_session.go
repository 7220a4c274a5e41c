// Package usecase wires the transport, router, pipeline and playback into a
// running voice session.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/domain/repositories"
	"github.com/satriahrh/swara/internal/metrics"
	"github.com/satriahrh/swara/internal/pipeline"
	"github.com/satriahrh/swara/internal/playback"
	"github.com/satriahrh/swara/internal/router"
	"github.com/satriahrh/swara/internal/visual"
)

// Config holds session construction parameters.
type Config struct {
	SampleRate         int
	HistoryCapacity    int
	ConnectTimeout     time.Duration
	SessionIdleTimeout time.Duration
}

// Diagnostics is a point-in-time snapshot of the session internals, served
// by the diagnostics endpoint.
type Diagnostics struct {
	Connected     bool                             `json:"connected"`
	QueueLength   int                              `json:"queue_length"`
	IsProcessing  bool                             `json:"is_processing"`
	RecentEvents  []entities.AudioEvent            `json:"recent_events"`
	AudioPipeline entities.PlaybackState           `json:"audio_pipeline"`
	Sessions      map[string]entities.SessionState `json:"sessions"`
	Signals       visual.Signals                   `json:"signals"`
}

// VoiceSession is one live conversation with the agent: it consumes the
// transport's message stream and drives audio out the speaker.
type VoiceSession struct {
	transport repositories.Transport
	router    *router.Router
	pipeline  *pipeline.Pipeline
	playback  *playback.Service
	visual    *visual.Adapter
	logger    *zap.Logger

	connectTimeout time.Duration

	mu        sync.Mutex
	connected bool
}

// NewVoiceSession assembles the session around a transport and a sink
// factory. Nothing connects or plays until Connect is called.
func NewVoiceSession(
	transport repositories.Transport,
	sinkFactory playback.SinkFactory,
	cfg Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *VoiceSession {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	out := playback.New(sinkFactory, logger, m)
	pipe := pipeline.New(out, pipeline.Config{
		SampleRate:      cfg.SampleRate,
		HistoryCapacity: cfg.HistoryCapacity,
		IdleTimeout:     cfg.SessionIdleTimeout,
	}, logger, m)
	out.SetChunkListener(pipe.ChunkDone)

	return &VoiceSession{
		transport:      transport,
		router:         router.New(pipe, logger, m),
		pipeline:       pipe,
		playback:       out,
		visual:         visual.NewAdapter(out),
		logger:         logger,
		connectTimeout: cfg.ConnectTimeout,
	}
}

// Connect establishes the agent connection within the configured bounded
// wait and starts consuming messages.
func (s *VoiceSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// Connecting counts as thinking for the visualization.
	s.visual.SetThinking(true)

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	if err := s.transport.Connect(ctx); err != nil {
		s.visual.SetThinking(false)
		return fmt.Errorf("connect voice session: %w", err)
	}
	s.visual.SetThinking(false)

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.visual.SetConnected(true)
	go s.consume()

	s.logger.Info("Voice session connected")
	return nil
}

// Disconnect tears the connection down. Pending audio is cancelled, not
// played out.
func (s *VoiceSession) Disconnect() error {
	err := s.transport.Close()
	s.onDisconnected()
	return err
}

// Connected reports whether the session has a live transport.
func (s *VoiceSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// RegisterFunction installs a handler for agent function calls.
func (s *VoiceSession) RegisterFunction(name string, fn router.FunctionHandler) {
	s.router.RegisterFunction(name, fn)
}

// OnTranscript subscribes to transcripts; the returned function unsubscribes.
func (s *VoiceSession) OnTranscript(fn router.TranscriptHandler) func() {
	return s.router.OnTranscript(fn)
}

// OnError subscribes to agent errors; the returned function unsubscribes.
func (s *VoiceSession) OnError(fn router.ErrorHandler) func() {
	return s.router.OnError(fn)
}

// StopPlayback cancels all queued and playing audio, keeping the connection.
func (s *VoiceSession) StopPlayback() {
	s.playback.Stop()
	s.pipeline.Reset()
}

// Signals returns the current visualization signals.
func (s *VoiceSession) Signals() visual.Signals {
	return s.visual.Signals()
}

// Diagnostics returns a snapshot of the session internals.
func (s *VoiceSession) Diagnostics() Diagnostics {
	return Diagnostics{
		Connected:     s.Connected(),
		QueueLength:   s.router.QueueLength(),
		IsProcessing:  s.router.IsProcessing(),
		RecentEvents:  s.pipeline.History(),
		AudioPipeline: s.playback.State(),
		Sessions:      s.pipeline.SessionStates(),
		Signals:       s.visual.Signals(),
	}
}

// Close shuts the session down entirely.
func (s *VoiceSession) Close() error {
	err := s.Disconnect()
	s.pipeline.Close()
	if cerr := s.playback.Close(); err == nil {
		err = cerr
	}
	return err
}

// consume pumps the transport stream into the router until the connection
// ends, then resets playback state.
func (s *VoiceSession) consume() {
	for msg := range s.transport.Messages() {
		if msg.Metadata.IsProcessing {
			s.visual.SetThinking(true)
		} else if msg.Type == entities.MessageTypeAudioChunk || msg.Type == entities.MessageTypeAudioComplete {
			// Audio arriving means the agent is done thinking.
			s.visual.SetThinking(false)
		}
		s.router.Enqueue(msg)
	}

	s.logger.Info("Agent connection ended")
	s.onDisconnected()
}

func (s *VoiceSession) onDisconnected() {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	s.mu.Unlock()
	if !was {
		return
	}

	s.visual.SetConnected(false)
	s.visual.SetThinking(false)
	s.playback.Stop()
	s.pipeline.Reset()
}
