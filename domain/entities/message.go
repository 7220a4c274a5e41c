package entities

import (
	"fmt"
)

// MessageType identifies the kind of inbound message delivered by the transport.
type MessageType string

// Supported inbound message types
const (
	MessageTypeAudioChunk    MessageType = "audio_chunk"
	MessageTypeAudioComplete MessageType = "audio_complete"
	MessageTypeFunctionCall  MessageType = "function_call"
	MessageTypeTranscript    MessageType = "transcript"
	MessageTypeError         MessageType = "error"
)

// MessageMetadata carries optional per-message flags set by the agent runtime.
type MessageMetadata struct {
	// Sequence is the chunk sequence number within a message, starting at 0.
	Sequence *int `json:"sequence,omitempty"`

	// IsBufferStart marks a control-only message announcing that audio
	// buffering for this message has begun. Such messages carry no payload.
	IsBufferStart bool `json:"is_buffer_start,omitempty"`

	// IsBufferStop marks a control-only message announcing that audio
	// buffering for this message has ended.
	IsBufferStop bool `json:"is_buffer_stop,omitempty"`

	// IsProcessing signals that the agent is still working on a response.
	IsProcessing bool `json:"is_processing,omitempty"`
}

// InboundMessage is a single message from the agent transport. It is
// immutable after creation and consumed exactly once; duplicate deliveries
// are detected through DedupKey.
//
// Data holds a base64 string or raw []byte for audio chunks, and a
// JSON-shaped payload for function calls, transcripts and errors.
type InboundMessage struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      interface{}     `json:"data,omitempty"`
	Metadata  MessageMetadata `json:"metadata,omitempty"`
}

// DedupKey returns the identity key used to discard transport re-deliveries.
func (m *InboundMessage) DedupKey() string {
	return fmt.Sprintf("%s|%s|%d", m.Type, m.ID, m.Timestamp)
}

// IsControlSignal reports whether the message is a buffer start/stop signal
// carrying no audio payload.
func (m *InboundMessage) IsControlSignal() bool {
	return m.Metadata.IsBufferStart || m.Metadata.IsBufferStop
}

// SequenceOr returns the metadata sequence number, or fallback when unset.
func (m *InboundMessage) SequenceOr(fallback int) int {
	if m.Metadata.Sequence != nil {
		return *m.Metadata.Sequence
	}
	return fallback
}

// FunctionCall is the parsed payload of a function_call message.
type FunctionCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Transcript is the parsed payload of a transcript message.
type Transcript struct {
	Role    string `json:"role,omitempty"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final,omitempty"`
}

// AgentError is the parsed payload of an error message from the agent.
type AgentError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
