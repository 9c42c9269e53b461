package segment

import (
	"testing"

	"github.com/leonardotrapani/neurotype/internal/eeg"
)

func samples(n int) []eeg.Sample {
	out := make([]eeg.Sample, n)
	for i := range out {
		out[i] = eeg.Sample{Timestamp: int64(i), Channels: []float64{float64(i)}, Quality: 100}
	}
	return out
}

func newSegmenter(t *testing.T) *Segmenter {
	t.Helper()
	s, err := New(ConfigForRate(128))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestConfigForRate(t *testing.T) {
	cfg := ConfigForRate(128)
	if cfg.SegmentLength != 256 || cfg.SubWindowLength != 32 || cfg.Slide != 4 {
		t.Fatalf("ConfigForRate(128) = %+v", cfg)
	}
	if got := cfg.SubSegmentsPerSegment(); got != 57 {
		t.Errorf("SubSegmentsPerSegment() = %d, want 57", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{256, 32, 4}, false},
		{"zero segment", Config{0, 32, 4}, true},
		{"window larger than segment", Config{16, 32, 4}, true},
		{"zero slide", Config{256, 32, 0}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestToSegments(t *testing.T) {
	s := newSegmenter(t)

	for _, l := range []int{0, 1, 255, 256, 257, 511, 512, 1000} {
		segs := s.ToSegments(samples(l))
		if len(segs) != l/256 {
			t.Errorf("L=%d: got %d segments, want %d", l, len(segs), l/256)
			continue
		}
		for i, seg := range segs {
			if seg.Len() != 256 {
				t.Errorf("L=%d: segment %d has %d samples", l, i, seg.Len())
			}
			if seg.StartTime != int64(i*256) || seg.EndTime != int64(i*256+255) {
				t.Errorf("L=%d: segment %d spans %d..%d", l, i, seg.StartTime, seg.EndTime)
			}
		}
	}
}

func TestToSubSegments(t *testing.T) {
	s := newSegmenter(t)
	seg := s.ToSegments(samples(256))[0]

	subs := s.ToSubSegments(seg)
	if len(subs) != 57 {
		t.Fatalf("got %d sub-segments, want 57", len(subs))
	}
	for i, sub := range subs {
		if sub.Len() != 32 {
			t.Errorf("sub %d has %d samples", i, sub.Len())
		}
		if sub.StartTime != int64(4*i) {
			t.Errorf("sub %d starts at %d, want %d", i, sub.StartTime, 4*i)
		}
	}
}

func TestToSubSegmentsShortSegment(t *testing.T) {
	s := newSegmenter(t)
	if subs := s.ToSubSegments(eeg.NewSegment(samples(10))); len(subs) != 0 {
		t.Errorf("expected no sub-segments, got %d", len(subs))
	}
}

func TestProcessRecording(t *testing.T) {
	s := newSegmenter(t)

	rec := s.ProcessRecording(samples(313))
	if len(rec.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(rec.Segments))
	}
	if len(rec.SubSegments) != len(rec.Segments) {
		t.Fatalf("sub-segment list not parallel: %d vs %d", len(rec.SubSegments), len(rec.Segments))
	}
	if len(rec.SubSegments[0]) != 57 {
		t.Errorf("got %d sub-segments, want 57", len(rec.SubSegments[0]))
	}
	if rec.TotalSubSegments() != 57 {
		t.Errorf("TotalSubSegments() = %d", rec.TotalSubSegments())
	}
}

func TestProcessRecordingEmpty(t *testing.T) {
	s := newSegmenter(t)
	rec := s.ProcessRecording(nil)
	if len(rec.Segments) != 0 || len(rec.SubSegments) != 0 {
		t.Errorf("expected empty recording, got %+v", rec)
	}
}
