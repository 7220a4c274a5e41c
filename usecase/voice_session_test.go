package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/domain/repositories"
)

type fakeTransport struct {
	mu       sync.Mutex
	messages chan entities.InboundMessage
	closed   bool
	blockOn  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{messages: make(chan entities.InboundMessage, 64)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.blockOn {
		<-ctx.Done()
		return entities.ErrConnectTimeout
	}
	return nil
}

func (f *fakeTransport) Messages() <-chan entities.InboundMessage {
	return f.messages
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.messages)
	}
	return nil
}

func (f *fakeTransport) deliver(msg entities.InboundMessage) {
	f.messages <- msg
}

type memorySink struct {
	mu     sync.Mutex
	writes [][]byte
	state  entities.ContextState
}

func newMemorySink() *memorySink {
	return &memorySink{state: entities.ContextStateRunning}
}

func (m *memorySink) Write(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, pcm)
	return nil
}

func (m *memorySink) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = entities.ContextStateRunning
	return nil
}

func (m *memorySink) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = entities.ContextStateSuspended
	return nil
}

func (m *memorySink) State() entities.ContextState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *memorySink) SampleRate() int { return 24000 }

func (m *memorySink) Close() error { return nil }

func (m *memorySink) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func newTestSession(t *testing.T, transport repositories.Transport, sink repositories.AudioSink) *VoiceSession {
	t.Helper()
	s := NewVoiceSession(transport, func() (repositories.AudioSink, error) {
		return sink, nil
	}, Config{SampleRate: 24000, ConnectTimeout: time.Second}, zap.NewNop(), nil)
	t.Cleanup(func() { s.Close() })
	return s
}

func chunkMsg(id string, ts int64, seq int, pcm []byte) entities.InboundMessage {
	return entities.InboundMessage{
		ID:        id,
		Type:      entities.MessageTypeAudioChunk,
		Timestamp: ts,
		Data:      base64.StdEncoding.EncodeToString(pcm),
		Metadata:  entities.MessageMetadata{Sequence: &seq},
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestOutOfOrderStreamPlaysInOrder(t *testing.T) {
	transport := newFakeTransport()
	sink := newMemorySink()
	s := newTestSession(t, transport, sink)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	// Chunks arrive 2, 0, 1; each is 2ms of audio so the test stays fast.
	pcm := func(b byte) []byte { return append([]byte{b}, make([]byte, 95)...) }
	transport.deliver(chunkMsg("msg-1", 1, 2, pcm(2)))
	transport.deliver(chunkMsg("msg-1", 2, 0, pcm(0)))
	transport.deliver(chunkMsg("msg-1", 3, 1, pcm(1)))
	transport.deliver(entities.InboundMessage{
		ID: "msg-1", Type: entities.MessageTypeAudioComplete, Timestamp: 4,
	})

	waitFor(t, func() bool { return sink.writeCount() == 3 }, "all chunks to play")
	sink.mu.Lock()
	for i, w := range sink.writes {
		if w[0] != byte(i) {
			t.Errorf("Expected chunk %d at position %d, got %d", i, i, w[0])
		}
	}
	sink.mu.Unlock()

	waitFor(t, func() bool {
		d := s.Diagnostics()
		return d.AudioPipeline.CurrentMessageID == "" && len(d.Sessions) == 0
	}, "session to drain and close")
}

func TestConnectTimeoutPropagates(t *testing.T) {
	transport := newFakeTransport()
	transport.blockOn = true
	s := NewVoiceSession(transport, func() (repositories.AudioSink, error) {
		return newMemorySink(), nil
	}, Config{ConnectTimeout: 50 * time.Millisecond}, zap.NewNop(), nil)
	defer s.Close()

	err := s.Connect(context.Background())
	if !errors.Is(err, entities.ErrConnectTimeout) {
		t.Errorf("Expected ErrConnectTimeout, got %v", err)
	}
	if s.Connected() {
		t.Error("Expected session not connected after timeout")
	}
}

func TestDisconnectResetsState(t *testing.T) {
	transport := newFakeTransport()
	sink := newMemorySink()
	s := newTestSession(t, transport, sink)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	transport.deliver(chunkMsg("msg-1", 1, 0, make([]byte, 96)))
	waitFor(t, func() bool { return sink.writeCount() == 1 }, "chunk to play")

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect returned error: %v", err)
	}
	waitFor(t, func() bool { return !s.Connected() }, "session to disconnect")

	if got := s.Signals().EffectiveVolume; got != 0 {
		t.Errorf("Expected volume 0 after disconnect, got %f", got)
	}
	if got := s.Diagnostics(); len(got.Sessions) != 0 {
		t.Errorf("Expected no open sessions after disconnect, got %d", len(got.Sessions))
	}
}

func TestThinkingSignalFollowsProcessingFlag(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport, newMemorySink())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	transport.deliver(entities.InboundMessage{
		ID: "msg-1", Type: entities.MessageTypeTranscript, Timestamp: 1,
		Data:     map[string]interface{}{"text": "thinking..."},
		Metadata: entities.MessageMetadata{IsProcessing: true},
	})
	waitFor(t, func() bool { return s.Signals().IsThinking }, "thinking to turn on")

	transport.deliver(chunkMsg("msg-1", 2, 0, make([]byte, 96)))
	waitFor(t, func() bool { return !s.Signals().IsThinking }, "thinking to turn off when audio arrives")
}

func TestTranscriptPassThrough(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport, newMemorySink())

	var mu sync.Mutex
	var texts []string
	s.OnTranscript(func(tr entities.Transcript) {
		mu.Lock()
		defer mu.Unlock()
		texts = append(texts, tr.Text)
	})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	transport.deliver(entities.InboundMessage{
		ID: "msg-1", Type: entities.MessageTypeTranscript, Timestamp: 1,
		Data: map[string]interface{}{"text": "hello there"},
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(texts) == 1 && texts[0] == "hello there"
	}, "transcript delivery")
}
