package media

import (
	"math"
	"testing"
	"time"
)

func sineSamples(sampleRate int, seconds float64) []int16 {
	n := int(float64(sampleRate) * seconds)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*440.0*t))
	}
	return samples
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sineSamples(8000, 0.1)

	data, err := Encode(original, 8000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != 44+len(original)*2 {
		t.Errorf("Expected WAV size %d, got %d", 44+len(original)*2, len(data))
	}

	src, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if src.SampleRate() != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", src.SampleRate())
	}

	decoded := make([]int16, len(original))
	if n := src.ReadFrame(decoded); n != len(original) {
		t.Fatalf("Expected %d samples, got %d", len(original), n)
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("Sample %d mismatch: expected %d, got %d", i, original[i], decoded[i])
		}
	}
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	if _, err := Decode([]byte("definitely not a wav file, not even close!!")); err == nil {
		t.Error("Expected error for non-WAV data")
	}
	if _, err := Decode([]byte("short")); err == nil {
		t.Error("Expected error for truncated data")
	}
}

func TestSeekClampsToTrackBounds(t *testing.T) {
	src := NewSource(sineSamples(8000, 1.0), 8000)

	src.Seek(time.Hour)
	if got := src.Position(); got != time.Second {
		t.Errorf("Expected seek past the end to clamp to 1s, got %v", got)
	}

	src.Seek(-time.Minute)
	if got := src.Position(); got != 0 {
		t.Errorf("Expected negative seek to clamp to 0, got %v", got)
	}

	src.Seek(500 * time.Millisecond)
	if got := src.Position(); got != 500*time.Millisecond {
		t.Errorf("Expected position 500ms, got %v", got)
	}
}

func TestReadFramePastEndReturnsZero(t *testing.T) {
	src := NewSource([]int16{1, 2, 3}, 8000)
	dst := make([]int16, 8)

	if n := src.ReadFrame(dst); n != 3 {
		t.Fatalf("Expected 3 samples, got %d", n)
	}
	if n := src.ReadFrame(dst); n != 0 {
		t.Errorf("Expected 0 samples past the end, got %d", n)
	}
}

func TestDecodeDownmixesStereo(t *testing.T) {
	// Hand-build a stereo file: encode interleaved pairs through the header
	// of a mono encode, then patch channel count.
	left := []int16{1000, 2000, 3000}
	right := []int16{3000, 4000, 5000}
	interleaved := make([]int16, 0, 6)
	for i := range left {
		interleaved = append(interleaved, left[i], right[i])
	}

	data, err := Encode(interleaved, 8000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	data[22] = 2 // NumChannels
	data[32] = 4 // BlockAlign

	src, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got := make([]int16, 3)
	if n := src.ReadFrame(got); n != 3 {
		t.Fatalf("Expected 3 downmixed samples, got %d", n)
	}
	for i := range left {
		want := int16((int32(left[i]) + int32(right[i])) / 2)
		if got[i] != want {
			t.Errorf("Sample %d: expected downmix %d, got %d", i, want, got[i])
		}
	}
}
