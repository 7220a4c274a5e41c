package entities

import (
	"errors"
	"time"
)

// SessionState represents the lifecycle state of a message session
type SessionState string

const (
	SessionStateEmpty     SessionState = "empty"
	SessionStateBuffering SessionState = "buffering"
	SessionStateComplete  SessionState = "complete"
	SessionStateDraining  SessionState = "draining"
	SessionStateClosed    SessionState = "closed"
)

// MessageSession accumulates the chunks of one in-flight spoken message,
// from first chunk to drained completion. Chunks may arrive out of order;
// they are buffered by sequence number and released strictly in
// non-decreasing order, never dropped.
type MessageSession struct {
	MessageID    string
	State        SessionState
	CreatedAt    time.Time
	LastActiveAt time.Time

	// buffered holds chunks that arrived ahead of the release cursor.
	buffered map[int]AudioChunk
	// nextSeq is the sequence number of the next chunk to release.
	nextSeq int
	// released counts chunks handed out in order so far.
	released int
}

// NewMessageSession creates a session for the given message ID.
func NewMessageSession(messageID string) *MessageSession {
	now := time.Now()
	return &MessageSession{
		MessageID:    messageID,
		State:        SessionStateEmpty,
		CreatedAt:    now,
		LastActiveAt: now,
		buffered:     make(map[int]AudioChunk),
	}
}

// Begin transitions an empty session into buffering. It is called on the
// first chunk or on an explicit buffer-start signal and is a no-op for any
// later state.
func (s *MessageSession) Begin() {
	if s.State == SessionStateEmpty {
		s.State = SessionStateBuffering
	}
	s.touch()
}

// Add buffers a chunk and returns the run of chunks that are now releasable
// in order. An out-of-order chunk yields an empty run; a chunk that fills a
// gap yields the whole contiguous run behind it.
func (s *MessageSession) Add(chunk AudioChunk) ([]AudioChunk, error) {
	if s.State == SessionStateClosed {
		return nil, errors.New("session is closed")
	}
	if chunk.Sequence < s.nextSeq {
		// Already released this position; a re-delivery slipped past dedup.
		return nil, nil
	}
	s.Begin()
	s.buffered[chunk.Sequence] = chunk
	s.touch()

	var run []AudioChunk
	for {
		next, ok := s.buffered[s.nextSeq]
		if !ok {
			break
		}
		delete(s.buffered, s.nextSeq)
		run = append(run, next)
		s.nextSeq++
		s.released++
	}
	return run, nil
}

// Complete marks the session complete. Calling it more than once has no
// additional effect; the return value reports whether the transition
// happened on this call.
func (s *MessageSession) Complete() bool {
	switch s.State {
	case SessionStateComplete, SessionStateDraining, SessionStateClosed:
		return false
	}
	s.State = SessionStateComplete
	s.touch()
	return true
}

// BeginDrain moves a complete session into draining.
func (s *MessageSession) BeginDrain() {
	if s.State == SessionStateComplete {
		s.State = SessionStateDraining
		s.touch()
	}
}

// Close strikes the session; its sequence cursor is reset and no further
// chunks are accepted.
func (s *MessageSession) Close() {
	s.State = SessionStateClosed
	s.nextSeq = 0
	s.buffered = make(map[int]AudioChunk)
	s.touch()
}

// Drained reports whether the session is complete with nothing left to
// release.
func (s *MessageSession) Drained() bool {
	return (s.State == SessionStateComplete || s.State == SessionStateDraining) && len(s.buffered) == 0
}

// PendingChunks returns the number of chunks buffered ahead of the cursor.
func (s *MessageSession) PendingChunks() int {
	return len(s.buffered)
}

// ReleasedChunks returns the number of chunks released in order so far.
func (s *MessageSession) ReleasedChunks() int {
	return s.released
}

// NextSequence returns the sequence number the session is waiting for.
func (s *MessageSession) NextSequence() int {
	return s.nextSeq
}

func (s *MessageSession) touch() {
	s.LastActiveAt = time.Now()
}
