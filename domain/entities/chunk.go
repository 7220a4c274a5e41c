package entities

import (
	"time"
)

// AudioChunk is one bounded unit of decoded PCM audio belonging to a single
// logical message. Chunks are created once from an InboundMessage and never
// mutated afterwards.
type AudioChunk struct {
	MessageID string
	// Sequence is monotonic per message, starting at 0.
	Sequence int
	// Bytes holds 16-bit little-endian mono PCM.
	Bytes []byte
	// EstimatedDuration is derived from the byte length and sample rate and
	// drives gapless scheduling of the following chunk.
	EstimatedDuration time.Duration
}

// NewAudioChunk builds a chunk and estimates its playback duration from the
// PCM byte length at the given sample rate (16-bit mono).
func NewAudioChunk(messageID string, sequence int, pcm []byte, sampleRate int) AudioChunk {
	return AudioChunk{
		MessageID:         messageID,
		Sequence:          sequence,
		Bytes:             pcm,
		EstimatedDuration: EstimatePCMDuration(len(pcm), sampleRate),
	}
}

// EstimatePCMDuration returns the playback duration of byteLen bytes of
// 16-bit mono PCM at sampleRate Hz.
func EstimatePCMDuration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
