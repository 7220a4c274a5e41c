package entities

import (
	"testing"
)

func chunk(messageID string, seq int) AudioChunk {
	return NewAudioChunk(messageID, seq, make([]byte, 480), 24000)
}

func TestSessionCreation(t *testing.T) {
	session := NewMessageSession("m1")

	if session.MessageID != "m1" {
		t.Errorf("Expected message ID m1, got %s", session.MessageID)
	}

	if session.State != SessionStateEmpty {
		t.Errorf("Expected state %s, got %s", SessionStateEmpty, session.State)
	}

	if session.PendingChunks() != 0 {
		t.Errorf("Expected no pending chunks, got %d", session.PendingChunks())
	}
}

func TestSessionInOrderRelease(t *testing.T) {
	session := NewMessageSession("m1")

	run, err := session.Add(chunk("m1", 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(run) != 1 || run[0].Sequence != 0 {
		t.Errorf("Expected run [0], got %v", sequences(run))
	}

	if session.State != SessionStateBuffering {
		t.Errorf("Expected state %s after first chunk, got %s", SessionStateBuffering, session.State)
	}

	run, _ = session.Add(chunk("m1", 1))
	if len(run) != 1 || run[0].Sequence != 1 {
		t.Errorf("Expected run [1], got %v", sequences(run))
	}
}

func TestSessionOutOfOrderBuffering(t *testing.T) {
	session := NewMessageSession("m1")

	// Sequence 2 and 1 arrive before 0; nothing may be released early.
	run, _ := session.Add(chunk("m1", 2))
	if len(run) != 0 {
		t.Errorf("Expected empty run for early chunk, got %v", sequences(run))
	}
	run, _ = session.Add(chunk("m1", 1))
	if len(run) != 0 {
		t.Errorf("Expected empty run for early chunk, got %v", sequences(run))
	}
	if session.PendingChunks() != 2 {
		t.Errorf("Expected 2 buffered chunks, got %d", session.PendingChunks())
	}

	// Chunk 0 fills the gap and releases the whole run in order.
	run, _ = session.Add(chunk("m1", 0))
	got := sequences(run)
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("Expected run [0 1 2], got %v", got)
	}
	if session.PendingChunks() != 0 {
		t.Errorf("Expected no buffered chunks after release, got %d", session.PendingChunks())
	}
}

func TestSessionDuplicateSequenceIgnored(t *testing.T) {
	session := NewMessageSession("m1")

	session.Add(chunk("m1", 0))
	run, err := session.Add(chunk("m1", 0))
	if err != nil {
		t.Fatalf("Re-delivered chunk should not error, got %v", err)
	}
	if len(run) != 0 {
		t.Errorf("Expected re-delivered chunk to release nothing, got %v", sequences(run))
	}
	if session.ReleasedChunks() != 1 {
		t.Errorf("Expected 1 released chunk, got %d", session.ReleasedChunks())
	}
}

func TestSessionCompleteIdempotent(t *testing.T) {
	session := NewMessageSession("m1")
	session.Add(chunk("m1", 0))

	if !session.Complete() {
		t.Error("First Complete should report a transition")
	}
	if session.Complete() {
		t.Error("Second Complete should have no additional effect")
	}
	if session.State != SessionStateComplete {
		t.Errorf("Expected state %s, got %s", SessionStateComplete, session.State)
	}
}

func TestSessionChunksAfterCompleteRemainPlayable(t *testing.T) {
	session := NewMessageSession("m1")
	session.Add(chunk("m1", 0))
	session.Complete()

	// The transport may reorder: a chunk arriving after completion is still
	// buffered and releasable.
	run, err := session.Add(chunk("m1", 1))
	if err != nil {
		t.Fatalf("Add after Complete failed: %v", err)
	}
	if len(run) != 1 || run[0].Sequence != 1 {
		t.Errorf("Expected run [1], got %v", sequences(run))
	}
}

func TestSessionClose(t *testing.T) {
	session := NewMessageSession("m1")
	session.Add(chunk("m1", 1))
	session.Close()

	if session.State != SessionStateClosed {
		t.Errorf("Expected state %s, got %s", SessionStateClosed, session.State)
	}
	if session.NextSequence() != 0 {
		t.Errorf("Expected sequence cursor reset to 0, got %d", session.NextSequence())
	}
	if _, err := session.Add(chunk("m1", 0)); err == nil {
		t.Error("Add on a closed session should fail")
	}
}

func TestSessionDrained(t *testing.T) {
	session := NewMessageSession("m1")
	session.Add(chunk("m1", 0))

	if session.Drained() {
		t.Error("Buffering session should not report drained")
	}

	session.Complete()
	if !session.Drained() {
		t.Error("Complete session with no pending chunks should report drained")
	}
}

func sequences(chunks []AudioChunk) []int {
	out := make([]int, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Sequence)
	}
	return out
}
