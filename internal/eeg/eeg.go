// Package eeg holds the value types shared by the acquisition, segmentation
// and classification stages.
package eeg

import (
	"errors"
	"fmt"
)

// Sample is one timestamped multi-channel reading. Producers never mutate a
// Sample after handing it out.
type Sample struct {
	Timestamp int64     `msgpack:"ts"`
	Channels  []float64 `msgpack:"ch"`
	Quality   float64   `msgpack:"q"`
}

// Segment is a contiguous run of samples. Sub-segments share the type.
type Segment struct {
	Samples   []Sample
	StartTime int64
	EndTime   int64
}

// NewSegment wraps samples and derives the start/end timestamps.
func NewSegment(samples []Sample) Segment {
	if len(samples) == 0 {
		return Segment{}
	}
	return Segment{
		Samples:   samples,
		StartTime: samples[0].Timestamp,
		EndTime:   samples[len(samples)-1].Timestamp,
	}
}

// Len returns the number of samples.
func (s Segment) Len() int { return len(s.Samples) }

// Matrix returns the segment as rows of channel readings, one row per sample.
func (s Segment) Matrix() [][]float64 {
	rows := make([][]float64, len(s.Samples))
	for i, sample := range s.Samples {
		rows[i] = sample.Channels
	}
	return rows
}

// ClassificationResult is a single classifier decision for one sub-segment.
type ClassificationResult struct {
	Symbol     rune
	Confidence float64
	Timestamp  int64
}

var (
	ErrEmptyAlphabet   = errors.New("alphabet is empty")
	ErrDuplicateSymbol = errors.New("alphabet contains duplicate symbol")
	ErrUnknownSymbol   = errors.New("symbol not in alphabet")
)

// DefaultLetters is the device app's label space.
const DefaultLetters = "ءأبثةتجحخدذرزسشصضطظعغفقكلمنهوى"

// Alphabet is a fixed, ordered set of distinct symbols.
type Alphabet struct {
	symbols []rune
	index   map[rune]int
}

// NewAlphabet builds an alphabet from the runes of letters.
func NewAlphabet(letters string) (Alphabet, error) {
	symbols := []rune(letters)
	if len(symbols) == 0 {
		return Alphabet{}, ErrEmptyAlphabet
	}
	index := make(map[rune]int, len(symbols))
	for i, r := range symbols {
		if _, dup := index[r]; dup {
			return Alphabet{}, fmt.Errorf("%w: %q", ErrDuplicateSymbol, r)
		}
		index[r] = i
	}
	return Alphabet{symbols: symbols, index: index}, nil
}

// DefaultAlphabet returns the alphabet built from DefaultLetters.
func DefaultAlphabet() Alphabet {
	a, err := NewAlphabet(DefaultLetters)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Alphabet) Len() int { return len(a.symbols) }

// At returns the i-th symbol.
func (a Alphabet) At(i int) rune { return a.symbols[i] }

// Index returns the position of r, or -1.
func (a Alphabet) Index(r rune) int {
	if i, ok := a.index[r]; ok {
		return i
	}
	return -1
}

func (a Alphabet) Contains(r rune) bool {
	_, ok := a.index[r]
	return ok
}

// Symbols returns a copy of the ordered symbols.
func (a Alphabet) Symbols() []rune {
	out := make([]rune, len(a.symbols))
	copy(out, a.symbols)
	return out
}

func (a Alphabet) String() string { return string(a.symbols) }
