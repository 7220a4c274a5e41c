package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/swara/domain/entities"
	"github.com/satriahrh/swara/domain/repositories"
)

type mockSink struct {
	mu      sync.Mutex
	writes  [][]byte
	state   entities.ContextState
	resumes int
	failAt  int // write index to fail at, -1 for never
}

func newMockSink() *mockSink {
	return &mockSink{state: entities.ContextStateRunning, failAt: -1}
}

func (m *mockSink) Write(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == entities.ContextStateSuspended {
		return errors.New("context suspended")
	}
	if len(m.writes) == m.failAt {
		m.writes = append(m.writes, nil)
		return errors.New("device write failed")
	}
	m.writes = append(m.writes, pcm)
	return nil
}

func (m *mockSink) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	m.state = entities.ContextStateRunning
	return nil
}

func (m *mockSink) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = entities.ContextStateSuspended
	return nil
}

func (m *mockSink) State() entities.ContextState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockSink) SampleRate() int { return 24000 }

func (m *mockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = entities.ContextStateClosed
	return nil
}

func (m *mockSink) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

type doneRecord struct {
	messageID string
	sequence  int
	cancelled bool
}

type doneCollector struct {
	mu   sync.Mutex
	done []doneRecord
}

func (c *doneCollector) listen(messageID string, sequence int, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = append(c.done, doneRecord{messageID, sequence, cancelled})
}

func (c *doneCollector) snapshot() []doneRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]doneRecord, len(c.done))
	copy(out, c.done)
	return out
}

// pcmChunk builds a chunk with a known level; ms of audio at 24kHz.
func pcmChunk(messageID string, seq, ms int, amplitude int16) entities.AudioChunk {
	samples := 24000 * ms / 1000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(amplitude))
	}
	return entities.NewAudioChunk(messageID, seq, pcm, 24000)
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

func TestSinkAcquiredLazily(t *testing.T) {
	sink := newMockSink()
	var factoryCalls int
	s := New(func() (repositories.AudioSink, error) {
		factoryCalls++
		return sink, nil
	}, zap.NewNop(), nil)
	defer s.Close()

	if factoryCalls != 0 {
		t.Fatalf("Expected no sink before first chunk, factory called %d times", factoryCalls)
	}

	for i := 0; i < 3; i++ {
		if err := s.EnqueueChunk(pcmChunk("msg-1", i, 5, 1000)); err != nil {
			t.Fatalf("EnqueueChunk returned error: %v", err)
		}
	}
	waitFor(t, func() bool { return sink.writeCount() == 3 }, "all chunks written")

	if factoryCalls != 1 {
		t.Errorf("Expected the sink to be acquired exactly once, factory called %d times", factoryCalls)
	}
}

func TestChunksWrittenInOrder(t *testing.T) {
	sink := newMockSink()
	collector := &doneCollector{}
	s := New(func() (repositories.AudioSink, error) { return sink, nil }, zap.NewNop(), nil)
	defer s.Close()
	s.SetChunkListener(collector.listen)

	for i := 0; i < 4; i++ {
		if err := s.EnqueueChunk(pcmChunk("msg-1", i, 5, 1000)); err != nil {
			t.Fatalf("EnqueueChunk returned error: %v", err)
		}
	}
	waitFor(t, func() bool { return len(collector.snapshot()) == 4 }, "all chunks done")

	for i, rec := range collector.snapshot() {
		if rec.sequence != i {
			t.Errorf("Expected sequence %d at position %d, got %d", i, i, rec.sequence)
		}
		if rec.cancelled {
			t.Errorf("Chunk %d unexpectedly reported cancelled", i)
		}
	}
}

func TestSuspendedSinkResumedBeforePlayback(t *testing.T) {
	sink := newMockSink()
	sink.state = entities.ContextStateSuspended
	s := New(func() (repositories.AudioSink, error) { return sink, nil }, zap.NewNop(), nil)
	defer s.Close()

	if err := s.EnqueueChunk(pcmChunk("msg-1", 0, 5, 1000)); err != nil {
		t.Fatalf("EnqueueChunk returned error: %v", err)
	}
	waitFor(t, func() bool { return sink.writeCount() == 1 }, "chunk written")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.resumes != 1 {
		t.Errorf("Expected exactly one resume before playback, got %d", sink.resumes)
	}
}

func TestWriteFailureDoesNotHaltQueue(t *testing.T) {
	sink := newMockSink()
	sink.failAt = 1
	collector := &doneCollector{}
	s := New(func() (repositories.AudioSink, error) { return sink, nil }, zap.NewNop(), nil)
	defer s.Close()
	s.SetChunkListener(collector.listen)

	for i := 0; i < 3; i++ {
		if err := s.EnqueueChunk(pcmChunk("msg-1", i, 5, 1000)); err != nil {
			t.Fatalf("EnqueueChunk returned error: %v", err)
		}
	}
	waitFor(t, func() bool { return len(collector.snapshot()) == 3 }, "all chunks settled")

	// Write index 1 failed; indexes 0 and 2 must still have played.
	sink.mu.Lock()
	written := 0
	for _, w := range sink.writes {
		if w != nil {
			written++
		}
	}
	sink.mu.Unlock()
	if written != 2 {
		t.Errorf("Expected 2 successful writes around the failure, got %d", written)
	}
}

func TestStopCancelsPendingChunks(t *testing.T) {
	sink := newMockSink()
	collector := &doneCollector{}
	s := New(func() (repositories.AudioSink, error) { return sink, nil }, zap.NewNop(), nil)
	defer s.Close()
	s.SetChunkListener(collector.listen)

	// A long first chunk keeps the worker busy while the rest queue up.
	if err := s.EnqueueChunk(pcmChunk("msg-1", 0, 500, 1000)); err != nil {
		t.Fatalf("EnqueueChunk returned error: %v", err)
	}
	for i := 1; i < 4; i++ {
		if err := s.EnqueueChunk(pcmChunk("msg-1", i, 500, 1000)); err != nil {
			t.Fatalf("EnqueueChunk returned error: %v", err)
		}
	}
	waitFor(t, func() bool { return sink.writeCount() == 1 }, "first chunk playing")

	s.Stop()
	waitFor(t, func() bool { return len(collector.snapshot()) == 4 }, "all chunks settled")

	cancelled := 0
	for _, rec := range collector.snapshot() {
		if rec.cancelled {
			cancelled++
		}
	}
	if cancelled != 4 {
		t.Errorf("Expected all 4 chunks reported cancelled, got %d", cancelled)
	}
	if got := s.State().QueueLength; got != 0 {
		t.Errorf("Expected empty queue after stop, got %d", got)
	}
}

func TestLevelReflectsPlayback(t *testing.T) {
	sink := newMockSink()
	s := New(func() (repositories.AudioSink, error) { return sink, nil }, zap.NewNop(), nil)
	defer s.Close()

	if s.Level() != 0 {
		t.Errorf("Expected level 0 while idle, got %f", s.Level())
	}

	if err := s.EnqueueChunk(pcmChunk("msg-1", 0, 300, 8000)); err != nil {
		t.Fatalf("EnqueueChunk returned error: %v", err)
	}
	waitFor(t, func() bool { return s.Level() > 0.01 }, "level to rise during playback")
	waitFor(t, func() bool { return s.Level() == 0 }, "level to fall back to 0 after drain")
}

func TestCurrentMessageClearedAfterDrain(t *testing.T) {
	sink := newMockSink()
	s := New(func() (repositories.AudioSink, error) { return sink, nil }, zap.NewNop(), nil)
	defer s.Close()

	if err := s.EnqueueChunk(pcmChunk("msg-1", 0, 10, 1000)); err != nil {
		t.Fatalf("EnqueueChunk returned error: %v", err)
	}
	waitFor(t, func() bool { return s.State().IsPlaying }, "playback to start")

	st := s.State()
	if st.CurrentMessageID != "msg-1" {
		t.Errorf("Expected current message msg-1 during playback, got %q", st.CurrentMessageID)
	}

	waitFor(t, func() bool { return s.State().CurrentMessageID == "" }, "current message to clear")
	if s.State().IsPlaying {
		t.Error("Expected IsPlaying false after drain")
	}
}

func TestEnqueueAfterCloseRejected(t *testing.T) {
	s := New(func() (repositories.AudioSink, error) { return newMockSink(), nil }, zap.NewNop(), nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := s.EnqueueChunk(pcmChunk("msg-1", 0, 5, 1000)); err == nil {
		t.Error("Expected enqueue after close to fail")
	}
}
