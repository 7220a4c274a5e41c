package entities

// ContextState represents the state of the platform audio context
type ContextState string

const (
	ContextStateRunning     ContextState = "running"
	ContextStateSuspended   ContextState = "suspended"
	ContextStateClosed      ContextState = "closed"
	ContextStateInterrupted ContextState = "interrupted"
)

// PlaybackState is a snapshot of the output queue. It is mutated only by the
// playback service and read by the visualization signal adapter and the
// diagnostics API.
type PlaybackState struct {
	QueueLength      int          `json:"queue_length"`
	IsPlaying        bool         `json:"is_playing"`
	CurrentMessageID string       `json:"current_message_id,omitempty"`
	LastSequence     int          `json:"last_sequence"`
	ContextState     ContextState `json:"context_state"`
}
