// Package segment splits a flat sample recording into fixed-length analysis
// segments and overlapping classifier sub-windows.
package segment

import (
	"fmt"
	"math"

	"github.com/leonardotrapani/neurotype/internal/eeg"
)

const (
	segmentSeconds   = 2.0
	subWindowSeconds = 0.25
	defaultSlide     = 4
)

// Config holds the windowing constants.
type Config struct {
	SegmentLength   int
	SubWindowLength int
	Slide           int
}

// ConfigForRate derives the windowing constants from a nominal sample rate:
// two-second segments, quarter-second sub-windows and a 4-sample stride.
func ConfigForRate(sampleRate int) Config {
	return Config{
		SegmentLength:   int(math.Floor(float64(sampleRate) * segmentSeconds)),
		SubWindowLength: int(math.Floor(float64(sampleRate) * subWindowSeconds)),
		Slide:           defaultSlide,
	}
}

func (c Config) Validate() error {
	if c.SegmentLength <= 0 {
		return fmt.Errorf("invalid segment length: %d", c.SegmentLength)
	}
	if c.SubWindowLength <= 0 || c.SubWindowLength > c.SegmentLength {
		return fmt.Errorf("invalid sub-window length: %d (segment length %d)", c.SubWindowLength, c.SegmentLength)
	}
	if c.Slide <= 0 {
		return fmt.Errorf("invalid slide: %d", c.Slide)
	}
	return nil
}

// SubSegmentsPerSegment is floor((S-W)/slide)+1.
func (c Config) SubSegmentsPerSegment() int {
	return (c.SegmentLength-c.SubWindowLength)/c.Slide + 1
}

// Recording is the result of ProcessRecording. SubSegments[i] belongs to
// Segments[i].
type Recording struct {
	Segments    []eeg.Segment
	SubSegments [][]eeg.Segment
}

// TotalSubSegments counts sub-segments across all segments.
func (r Recording) TotalSubSegments() int {
	n := 0
	for _, subs := range r.SubSegments {
		n += len(subs)
	}
	return n
}

type Segmenter struct {
	cfg Config
}

func New(cfg Config) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{cfg: cfg}, nil
}

func (s *Segmenter) Config() Config { return s.cfg }

// ToSegments walks samples in non-overlapping chunks of SegmentLength. A
// trailing partial chunk is dropped.
func (s *Segmenter) ToSegments(samples []eeg.Sample) []eeg.Segment {
	n := len(samples) / s.cfg.SegmentLength
	segments := make([]eeg.Segment, 0, n)
	for i := 0; i+s.cfg.SegmentLength <= len(samples); i += s.cfg.SegmentLength {
		segments = append(segments, eeg.NewSegment(samples[i:i+s.cfg.SegmentLength:i+s.cfg.SegmentLength]))
	}
	return segments
}

// ToSubSegments emits a SubWindowLength window at every Slide offset while
// a full window still fits.
func (s *Segmenter) ToSubSegments(seg eeg.Segment) []eeg.Segment {
	last := seg.Len() - s.cfg.SubWindowLength
	if last < 0 {
		return nil
	}
	subs := make([]eeg.Segment, 0, last/s.cfg.Slide+1)
	for off := 0; off <= last; off += s.cfg.Slide {
		end := off + s.cfg.SubWindowLength
		subs = append(subs, eeg.NewSegment(seg.Samples[off:end:end]))
	}
	return subs
}

func (s *Segmenter) ProcessRecording(samples []eeg.Sample) Recording {
	segments := s.ToSegments(samples)
	subs := make([][]eeg.Segment, len(segments))
	for i, seg := range segments {
		subs[i] = s.ToSubSegments(seg)
	}
	return Recording{Segments: segments, SubSegments: subs}
}
