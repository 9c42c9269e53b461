package classifier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/leonardotrapani/neurotype/internal/eeg"
)

var ErrFeatureMismatch = errors.New("feature vector does not match model")

// minScale keeps distance scales away from zero when training data is
// perfectly uniform.
const minScale = 1e-6

// Features reduces a window to per-channel means followed by per-channel
// standard deviations. The channel count is taken from the first sample;
// missing readings count as zero.
func Features(seg eeg.Segment) []float64 {
	if seg.Len() == 0 {
		return nil
	}
	channels := len(seg.Samples[0].Channels)
	out := make([]float64, 2*channels)
	col := make([]float64, seg.Len())
	for c := 0; c < channels; c++ {
		for i, s := range seg.Samples {
			if c < len(s.Channels) {
				col[i] = s.Channels[c]
			} else {
				col[i] = 0
			}
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) {
			std = 0
		}
		out[c] = mean
		out[channels+c] = std
	}
	return out
}

// Model scores one feature vector.
type Model interface {
	Predict(features []float64) (symbol rune, confidence float64, err error)
}

// CentroidModel is a nearest-centroid letter classifier. Confidence is the
// softmax weight of the winning centroid over negative scaled distances.
type CentroidModel struct {
	Symbols   []rune      `msgpack:"symbols"`
	Centroids [][]float64 `msgpack:"centroids"`
	Scale     float64     `msgpack:"scale"`
}

// FitCentroids builds a model from labelled feature vectors. Symbols keep the
// order given in order; symbols without examples are skipped.
func FitCentroids(order []rune, examples map[rune][][]float64) (*CentroidModel, error) {
	m := &CentroidModel{}
	var spread []float64
	dim := -1
	for _, sym := range order {
		vecs := examples[sym]
		if len(vecs) == 0 {
			continue
		}
		centroid, err := mean(vecs, &dim)
		if err != nil {
			return nil, fmt.Errorf("letter %c: %w", sym, err)
		}
		for _, v := range vecs {
			spread = append(spread, floats.Distance(v, centroid, 2))
		}
		m.Symbols = append(m.Symbols, sym)
		m.Centroids = append(m.Centroids, centroid)
	}
	if len(m.Symbols) == 0 {
		return nil, ErrNoTrainingData
	}
	m.Scale = math.Max(stat.Mean(spread, nil), minScale)
	return m, nil
}

func (m *CentroidModel) Predict(features []float64) (rune, float64, error) {
	if len(m.Centroids) == 0 {
		return 0, 0, ErrClassificationUnavailable
	}
	if len(features) != len(m.Centroids[0]) {
		return 0, 0, fmt.Errorf("%w: got %d values, want %d", ErrFeatureMismatch, len(features), len(m.Centroids[0]))
	}
	scores := make([]float64, len(m.Centroids))
	for i, c := range m.Centroids {
		scores[i] = -floats.Distance(features, c, 2) / m.Scale
	}
	best := floats.MaxIdx(scores)
	// log-sum-exp keeps the softmax finite for large distances
	norm := floats.LogSumExp(scores)
	return m.Symbols[best], math.Exp(scores[best] - norm), nil
}

// StartDetector is a one-class detector: the probability that a segment is
// the user's start symbol decays exponentially with distance from the
// centroid of the positive examples.
type StartDetector struct {
	Centroid []float64 `msgpack:"centroid"`
	Scale    float64   `msgpack:"scale"`
}

// A positive example at the average training distance scores exp(-1/3).
const detectorSpread = 3.0

func FitDetector(examples [][]float64) (*StartDetector, error) {
	if len(examples) == 0 {
		return nil, ErrNoTrainingData
	}
	dim := -1
	centroid, err := mean(examples, &dim)
	if err != nil {
		return nil, err
	}
	dists := make([]float64, len(examples))
	for i, v := range examples {
		dists[i] = floats.Distance(v, centroid, 2)
	}
	return &StartDetector{
		Centroid: centroid,
		Scale:    math.Max(detectorSpread*stat.Mean(dists, nil), minScale),
	}, nil
}

// Probability returns the positive-class probability in [0,1].
func (d *StartDetector) Probability(features []float64) (float64, error) {
	if len(features) != len(d.Centroid) {
		return 0, fmt.Errorf("%w: got %d values, want %d", ErrFeatureMismatch, len(features), len(d.Centroid))
	}
	return math.Exp(-floats.Distance(features, d.Centroid, 2) / d.Scale), nil
}

// mean averages vecs. *dim carries the expected dimension across calls; -1
// adopts the first vector's length.
func mean(vecs [][]float64, dim *int) ([]float64, error) {
	if *dim < 0 {
		*dim = len(vecs[0])
	}
	out := make([]float64, *dim)
	for _, v := range vecs {
		if len(v) != *dim {
			return nil, fmt.Errorf("%w: got %d values, want %d", ErrFeatureMismatch, len(v), *dim)
		}
		floats.Add(out, v)
	}
	floats.Scale(1/float64(len(vecs)), out)
	return out, nil
}
