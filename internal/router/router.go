// Package router orders and dispatches inbound agent messages. Messages are
// queued FIFO and drained by at most one loop at a time, so handlers for a
// single conversation never run concurrently with each other.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/internal/codec"
	"github.com/satriahrh/swara/internal/metrics"
)

// dedupLimit bounds the remembered message identity keys.
const dedupLimit = 512

// AudioProcessor receives routed audio traffic. Implemented by the playback
// pipeline.
type AudioProcessor interface {
	StartSession(messageID string)
	EndSession(messageID string)
	ProcessChunk(messageID string, pcm []byte, sequence int) error
	CompleteMessage(messageID string)
	Emit(ev entities.AudioEvent)
}

// FunctionHandler executes a named function call requested by the agent.
type FunctionHandler func(args map[string]interface{}) error

// TranscriptHandler receives transcript messages.
type TranscriptHandler func(t entities.Transcript)

// ErrorHandler receives agent-reported errors.
type ErrorHandler func(e entities.AgentError)

// Router is the single entry point for inbound messages. Enqueue is safe for
// concurrent use; dispatch happens on one drain goroutine at a time.
type Router struct {
	audio   AudioProcessor
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	queue    []entities.InboundMessage
	draining bool

	seen      map[string]struct{}
	seenOrder []string

	// autoSeq assigns sequence numbers to chunks whose metadata carries none,
	// per message.
	autoSeq map[string]int

	functions sync.Map // name -> FunctionHandler

	subMu       sync.Mutex
	nextSubID   int
	transcripts map[int]TranscriptHandler
	errHandlers map[int]ErrorHandler
}

// New creates a router dispatching audio traffic to audio.
func New(audio AudioProcessor, logger *zap.Logger, m *metrics.Metrics) *Router {
	return &Router{
		audio:       audio,
		logger:      logger,
		metrics:     m,
		seen:        make(map[string]struct{}),
		autoSeq:     make(map[string]int),
		transcripts: make(map[int]TranscriptHandler),
		errHandlers: make(map[int]ErrorHandler),
	}
}

// Enqueue appends a message to the queue and starts a drain loop if none is
// running. Duplicate deliveries are discarded here, before they ever queue.
func (r *Router) Enqueue(msg entities.InboundMessage) {
	r.mu.Lock()
	if r.isDuplicateLocked(msg) {
		r.mu.Unlock()
		r.logger.Debug("Discarding duplicate message",
			zap.String("messageID", msg.ID),
			zap.String("type", string(msg.Type)))
		if r.metrics != nil {
			r.metrics.MessagesDuplicate.Inc()
		}
		return
	}
	r.queue = append(r.queue, msg)
	depth := len(r.queue)
	start := !r.draining
	if start {
		r.draining = true
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.QueueDepth.Set(float64(depth))
	}
	if start {
		go r.drain()
	}
}

// QueueLength returns the number of messages waiting to dispatch.
func (r *Router) QueueLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// IsProcessing reports whether a drain loop is currently dispatching.
func (r *Router) IsProcessing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

// RegisterFunction installs a handler for agent function calls by name. A
// later registration for the same name replaces the earlier one.
func (r *Router) RegisterFunction(name string, fn FunctionHandler) {
	r.functions.Store(name, fn)
}

// OnTranscript subscribes to transcript messages. The returned function
// removes the subscription.
func (r *Router) OnTranscript(fn TranscriptHandler) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSubID
	r.nextSubID++
	r.transcripts[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.transcripts, id)
	}
}

// OnError subscribes to agent error messages. The returned function removes
// the subscription.
func (r *Router) OnError(fn ErrorHandler) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSubID
	r.nextSubID++
	r.errHandlers[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.errHandlers, id)
	}
}

func (r *Router) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.draining = false
			r.mu.Unlock()
			return
		}
		msg := r.queue[0]
		r.queue = r.queue[1:]
		depth := len(r.queue)
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.QueueDepth.Set(float64(depth))
		}
		r.dispatch(msg)
	}
}

func (r *Router) dispatch(msg entities.InboundMessage) {
	if r.metrics != nil {
		r.metrics.MessagesRouted.WithLabelValues(string(msg.Type)).Inc()
	}

	switch msg.Type {
	case entities.MessageTypeAudioChunk:
		r.handleChunk(msg)
	case entities.MessageTypeAudioComplete:
		r.mu.Lock()
		delete(r.autoSeq, msg.ID)
		r.mu.Unlock()
		r.audio.CompleteMessage(msg.ID)
	case entities.MessageTypeFunctionCall:
		r.handleFunctionCall(msg)
	case entities.MessageTypeTranscript:
		r.handleTranscript(msg)
	case entities.MessageTypeError:
		r.handleError(msg)
	default:
		r.logger.Warn("Skipping message of unknown type",
			zap.String("messageID", msg.ID),
			zap.String("type", string(msg.Type)))
	}
}

// handleChunk routes one audio_chunk message. Control signals never touch
// the decoder; payload chunks are decoded and sequenced. Malformed chunks
// are logged and skipped so the stream keeps flowing.
func (r *Router) handleChunk(msg entities.InboundMessage) {
	if msg.Metadata.IsBufferStart {
		r.audio.StartSession(msg.ID)
		return
	}
	if msg.Metadata.IsBufferStop {
		r.audio.EndSession(msg.ID)
		return
	}
	if msg.Data == nil {
		r.logger.Warn("Skipping malformed chunk",
			zap.String("messageID", msg.ID),
			zap.Error(entities.ErrMalformedChunk))
		return
	}

	pcm, err := codec.Decode(msg.Data)
	if err != nil {
		r.logger.Warn("Skipping undecodable chunk",
			zap.String("messageID", msg.ID),
			zap.Error(err))
		r.audio.Emit(entities.AudioEvent{
			Kind:      entities.EventDecodeError,
			MessageID: msg.ID,
			Detail:    err.Error(),
		})
		if r.metrics != nil {
			r.metrics.DecodeErrors.Inc()
		}
		return
	}

	seq := r.nextSequence(msg)
	if err := r.audio.ProcessChunk(msg.ID, pcm, seq); err != nil {
		r.logger.Warn("Pipeline rejected chunk",
			zap.String("messageID", msg.ID),
			zap.Int("sequence", seq),
			zap.Error(err))
	}
}

// nextSequence resolves the chunk's position: explicit metadata wins,
// otherwise chunks are numbered in arrival order per message.
func (r *Router) nextSequence(msg entities.InboundMessage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	auto := r.autoSeq[msg.ID]
	seq := msg.SequenceOr(auto)
	if seq >= auto {
		r.autoSeq[msg.ID] = seq + 1
	}
	return seq
}

func (r *Router) handleFunctionCall(msg entities.InboundMessage) {
	var call entities.FunctionCall
	if err := decodePayload(msg.Data, &call); err != nil {
		r.logger.Warn("Skipping unparseable function call",
			zap.String("messageID", msg.ID),
			zap.Error(err))
		return
	}
	value, ok := r.functions.Load(call.Name)
	if !ok {
		r.logger.Warn("Skipping call to unregistered function",
			zap.String("messageID", msg.ID),
			zap.String("function", call.Name))
		return
	}
	fn := value.(FunctionHandler)
	if err := r.safeCall(func() error { return fn(call.Arguments) }); err != nil {
		r.logger.Error("Function handler failed",
			zap.String("function", call.Name),
			zap.Error(err))
	}
}

func (r *Router) handleTranscript(msg entities.InboundMessage) {
	var t entities.Transcript
	if err := decodePayload(msg.Data, &t); err != nil {
		r.logger.Warn("Skipping unparseable transcript",
			zap.String("messageID", msg.ID),
			zap.Error(err))
		return
	}
	for _, fn := range r.transcriptHandlers() {
		handler := fn
		if err := r.safeCall(func() error { handler(t); return nil }); err != nil {
			r.logger.Error("Transcript subscriber panicked", zap.Error(err))
		}
	}
}

func (r *Router) handleError(msg entities.InboundMessage) {
	var agentErr entities.AgentError
	if err := decodePayload(msg.Data, &agentErr); err != nil {
		r.logger.Warn("Skipping unparseable error message",
			zap.String("messageID", msg.ID),
			zap.Error(err))
		return
	}
	r.logger.Warn("Agent reported error",
		zap.String("code", agentErr.Code),
		zap.String("message", agentErr.Message))
	for _, fn := range r.errorHandlers() {
		handler := fn
		if err := r.safeCall(func() error { handler(agentErr); return nil }); err != nil {
			r.logger.Error("Error subscriber panicked", zap.Error(err))
		}
	}
}

func (r *Router) transcriptHandlers() []TranscriptHandler {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	out := make([]TranscriptHandler, 0, len(r.transcripts))
	for _, fn := range r.transcripts {
		out = append(out, fn)
	}
	return out
}

func (r *Router) errorHandlers() []ErrorHandler {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	out := make([]ErrorHandler, 0, len(r.errHandlers))
	for _, fn := range r.errHandlers {
		out = append(out, fn)
	}
	return out
}

// safeCall runs fn, converting a panic into an error so one bad handler
// cannot take down the drain loop.
func (r *Router) safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return fn()
}

func (r *Router) isDuplicateLocked(msg entities.InboundMessage) bool {
	key := msg.DedupKey()
	if _, ok := r.seen[key]; ok {
		return true
	}
	r.seen[key] = struct{}{}
	r.seenOrder = append(r.seenOrder, key)
	if len(r.seenOrder) > dedupLimit {
		oldest := r.seenOrder[0]
		r.seenOrder = r.seenOrder[1:]
		delete(r.seen, oldest)
	}
	return false
}

// decodePayload converts a loosely typed JSON payload into its parsed form.
func decodePayload(data interface{}, out interface{}) error {
	if data == nil {
		return errors.New("payload is empty")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	return nil
}
