// Package media loads pre-recorded audio for the dual-track player.
package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/satriahrh/swara/domain/repositories"
)

// WAVHeader represents the header structure of a canonical PCM WAV file.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Source is an in-memory seekable track backed by decoded WAV samples.
type Source struct {
	mu      sync.Mutex
	samples []int16
	pos     int
	rate    int
}

// NewSource wraps raw mono samples as a track.
func NewSource(samples []int16, sampleRate int) *Source {
	return &Source{samples: samples, rate: sampleRate}
}

// OpenFile loads a WAV file as a track source.
func OpenFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses WAV data into a track source. Stereo files are downmixed to
// mono; only 16-bit PCM is supported.
func Decode(data []byte) (*Source, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	buf := bytes.NewReader(data)
	var header WAVHeader
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	channels := int(header.NumChannels)
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported channel count: %d", channels)
	}

	numFrames := int(header.Subchunk2Size) / 2 / channels
	if numFrames <= 0 {
		return nil, fmt.Errorf("WAV file contains no audio data")
	}
	raw := make([]int16, numFrames*channels)
	if err := binary.Read(buf, binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	samples := raw
	if channels == 2 {
		samples = make([]int16, numFrames)
		for i := 0; i < numFrames; i++ {
			samples[i] = int16((int32(raw[i*2]) + int32(raw[i*2+1])) / 2)
		}
	}
	return NewSource(samples, int(header.SampleRate)), nil
}

// Encode renders mono PCM-16 samples into WAV format.
func Encode(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadFrame copies samples from the current position and advances it.
func (s *Source) ReadFrame(dst []int16) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(dst, s.samples[s.pos:])
	s.pos += n
	return n
}

// Seek positions the source, clamping to [0, Duration].
func (s *Source) Seek(offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := int(offset * time.Duration(s.rate) / time.Second)
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.samples) {
		pos = len(s.samples)
	}
	s.pos = pos
}

// Position returns the current offset from the start.
func (s *Source) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.pos) * time.Second / time.Duration(s.rate)
}

// Duration returns the total track duration.
func (s *Source) Duration() time.Duration {
	return time.Duration(len(s.samples)) * time.Second / time.Duration(s.rate)
}

// SampleRate returns the track sample rate in Hz.
func (s *Source) SampleRate() int {
	return s.rate
}

var _ repositories.TrackSource = (*Source)(nil)
