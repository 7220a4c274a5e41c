package dualtrack

import (
	"github.com/satriahrh/swara/domain/repositories"
)

// stretcher pulls mono frames from a track source at an adjustable rate.
//
// With pitch preservation the signal is time-stretched: every output block
// is a full, contiguous slice of the source, but the read point advances by
// rate*block per block — dropping material above unity rate, repeating it
// below — with a short crossfade between consecutive blocks to mask the
// splice. The samples themselves keep their original spacing, so pitch is
// unchanged. Without preservation the source is linearly resampled, which
// shifts pitch with the rate (tape-style varispeed).
type stretcher struct {
	source        repositories.TrackSource
	rate          float64
	preservePitch bool

	// window holds source samples at and ahead of the read point; it is
	// refilled to a full block before each emit and advanced by the
	// consumed amount, which is what repeats or drops material.
	window []int16
	eof    bool
	// carry holds the tail of the last emitted block, used for the
	// crossfade splice.
	carry []int16
	// frac is the fractional read position.
	frac float64
	last int16
}

func newStretcher(source repositories.TrackSource) *stretcher {
	return &stretcher{source: source, rate: 1.0}
}

func (s *stretcher) setRate(rate float64, preservePitch bool) {
	s.rate = rate
	s.preservePitch = preservePitch
	s.window = nil
	s.eof = false
	s.carry = nil
	s.frac = 0
}

// read fills dst with the next block of output samples and reports how many
// were produced. Fewer than len(dst) means the source is exhausted.
func (s *stretcher) read(dst []int16) int {
	if s.rate == 1.0 {
		return s.source.ReadFrame(dst)
	}
	if s.preservePitch {
		return s.readStretched(dst)
	}
	return s.readResampled(dst)
}

// crossfadeSamples is the splice length between stretched blocks.
const crossfadeSamples = 64

func (s *stretcher) readStretched(dst []int16) int {
	want := len(dst)
	consume := int(float64(want)*s.rate + s.frac)
	s.frac += float64(want)*s.rate - float64(consume)

	// Top the window up to a full block (or the consumed span, whichever is
	// larger) so slowed playback never emits short, silence-padded blocks.
	need := want
	if consume > need {
		need = consume
	}
	for len(s.window) < need && !s.eof {
		buf := make([]int16, need-len(s.window))
		n := s.source.ReadFrame(buf)
		if n == 0 {
			s.eof = true
			break
		}
		s.window = append(s.window, buf[:n]...)
	}
	if len(s.window) == 0 {
		return 0
	}

	out := want
	if len(s.window) < out {
		out = len(s.window)
	}
	copy(dst, s.window[:out])

	// Splice the block boundary against the tail of the previous block.
	fade := crossfadeSamples
	if fade > out {
		fade = out
	}
	if fade > len(s.carry) {
		fade = len(s.carry)
	}
	for i := 0; i < fade; i++ {
		w := float64(i) / float64(fade)
		dst[i] = int16(float64(s.carry[len(s.carry)-fade+i])*(1-w) + float64(dst[i])*w)
	}

	tail := crossfadeSamples
	if tail > out {
		tail = out
	}
	s.carry = append(s.carry[:0], dst[out-tail:]...)

	// Advance by the consumed amount: less than a block repeats material,
	// more drops it.
	adv := consume
	if adv > len(s.window) {
		adv = len(s.window)
	}
	s.window = s.window[adv:]
	return out
}

func (s *stretcher) readResampled(dst []int16) int {
	consume := int(float64(len(dst))*s.rate + s.frac + 1)
	buf := make([]int16, consume)
	n := s.source.ReadFrame(buf)
	if n == 0 {
		return 0
	}

	produced := 0
	pos := s.frac
	for produced < len(dst) {
		idx := int(pos)
		if idx >= n {
			break
		}
		a := s.last
		if idx > 0 {
			a = buf[idx-1]
		}
		b := buf[idx]
		t := pos - float64(idx)
		dst[produced] = int16(float64(a)*(1-t) + float64(b)*t)
		produced++
		pos += s.rate
	}
	s.frac = pos - float64(n)
	if s.frac < 0 {
		s.frac = 0
	}
	s.last = buf[n-1]
	return produced
}
