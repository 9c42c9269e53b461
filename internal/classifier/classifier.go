// Package classifier turns segmented EEG windows into alphabet symbols and
// owns the trained letter model and start-symbol detector.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/metrics"
	"github.com/leonardotrapani/neurotype/internal/segment"
	"github.com/leonardotrapani/neurotype/internal/store"
)

// Store keys for persisted models.
const (
	LettersKey     = "models/letters"
	StartSymbolKey = "models/start-symbol"
)

// DefaultThreshold is the positive-class probability a segment must exceed to
// count as the start symbol.
const DefaultThreshold = 0.7

var (
	ErrClassificationUnavailable = errors.New("classification model not available")
	ErrBaseModelNotLoaded        = errors.New("base letter model not loaded")
	ErrNoTrainingData            = errors.New("no training data")
)

// Fallback selects what Classify does without a letter model.
type Fallback string

const (
	FallbackFail   Fallback = "fail"
	FallbackRandom Fallback = "random"
)

type Config struct {
	Alphabet     eeg.Alphabet
	Segmentation segment.Config
	Fallback     Fallback
	Threshold    float64
	// Rand drives the random fallback. Nil seeds from the clock.
	Rand *rand.Rand
}

// Classifier is safe for concurrent use.
type Classifier struct {
	alphabet  eeg.Alphabet
	segmenter *segment.Segmenter
	fallback  Fallback
	threshold float64
	store     store.Store
	metrics   *metrics.Metrics
	log       zerolog.Logger

	mu       sync.RWMutex
	letters  Model
	detector *StartDetector

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a classifier with no models loaded. st may be nil, in which case
// trained models live only in memory.
func New(cfg Config, st store.Store, m *metrics.Metrics) (*Classifier, error) {
	if cfg.Alphabet.Len() == 0 {
		cfg.Alphabet = eeg.DefaultAlphabet()
	}
	seg, err := segment.New(cfg.Segmentation)
	if err != nil {
		return nil, fmt.Errorf("classifier segmentation: %w", err)
	}
	switch cfg.Fallback {
	case "":
		cfg.Fallback = FallbackFail
	case FallbackFail, FallbackRandom:
	default:
		return nil, fmt.Errorf("unknown classifier fallback %q", cfg.Fallback)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Rand == nil {
		now := uint64(time.Now().UnixNano())
		cfg.Rand = rand.New(rand.NewPCG(now, now>>1))
	}
	return &Classifier{
		alphabet:  cfg.Alphabet,
		segmenter: seg,
		fallback:  cfg.Fallback,
		threshold: cfg.Threshold,
		store:     st,
		metrics:   m,
		log:       logging.WithComponent("classifier"),
		rng:       cfg.Rand,
	}, nil
}

// Load restores persisted models. Missing entries are not an error.
func (c *Classifier) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	var letters CentroidModel
	switch err := store.GetValue(ctx, c.store, LettersKey, &letters); {
	case err == nil:
		c.SetLetterModel(&letters)
		c.log.Info().Int("letters", len(letters.Symbols)).Msg("letter model loaded")
	case errors.Is(err, store.ErrNotFound):
		c.log.Info().Msg("no letter model stored")
	default:
		return fmt.Errorf("load letter model: %w", err)
	}

	var det StartDetector
	switch err := store.GetValue(ctx, c.store, StartSymbolKey, &det); {
	case err == nil:
		c.mu.Lock()
		c.detector = &det
		c.mu.Unlock()
		c.log.Info().Msg("start-symbol detector loaded")
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("load start-symbol detector: %w", err)
	}
	return nil
}

// SetLetterModel replaces the base letter model.
func (c *Classifier) SetLetterModel(m Model) {
	c.mu.Lock()
	c.letters = m
	c.mu.Unlock()
}

func (c *Classifier) HasLetterModel() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.letters != nil
}

func (c *Classifier) HasDetector() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detector != nil
}

func (c *Classifier) Alphabet() eeg.Alphabet { return c.alphabet }

// Classify assigns one symbol to a sub-segment.
func (c *Classifier) Classify(ctx context.Context, sub eeg.Segment) (eeg.ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return eeg.ClassificationResult{}, err
	}

	c.mu.RLock()
	model := c.letters
	c.mu.RUnlock()

	if model == nil {
		if c.fallback == FallbackRandom {
			c.metrics.RecordClassification("random")
			return c.randomResult(sub), nil
		}
		c.metrics.RecordClassification("unavailable")
		return eeg.ClassificationResult{}, ErrClassificationUnavailable
	}

	sym, conf, err := model.Predict(Features(sub))
	if err != nil {
		c.metrics.RecordClassification("error")
		return eeg.ClassificationResult{}, err
	}
	if !c.alphabet.Contains(sym) {
		c.metrics.RecordClassification("error")
		return eeg.ClassificationResult{}, fmt.Errorf("%w: %c", eeg.ErrUnknownSymbol, sym)
	}
	c.metrics.RecordClassification("ok")
	return eeg.ClassificationResult{Symbol: sym, Confidence: conf, Timestamp: sub.StartTime}, nil
}

func (c *Classifier) randomResult(sub eeg.Segment) eeg.ClassificationResult {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return eeg.ClassificationResult{
		Symbol:     c.alphabet.At(c.rng.IntN(c.alphabet.Len())),
		Confidence: c.rng.Float64(),
		Timestamp:  sub.StartTime,
	}
}

// ProcessAllSegments classifies every sub-segment of rec, reduces each
// segment to one symbol and concatenates them in segment order. Segments
// without sub-segments contribute nothing.
func (c *Classifier) ProcessAllSegments(ctx context.Context, rec segment.Recording) (string, error) {
	var b strings.Builder
	for i, subs := range rec.SubSegments {
		results := make([]eeg.ClassificationResult, 0, len(subs))
		for _, sub := range subs {
			r, err := c.Classify(ctx, sub)
			if err != nil {
				return "", fmt.Errorf("segment %d: %w", i, err)
			}
			results = append(results, r)
		}
		if sym, ok := Aggregate(results); ok {
			b.WriteRune(sym)
		}
	}
	return b.String(), nil
}

// DetectStartSymbol reports whether seg looks like the user's start symbol.
// It never fails: without a detector, or on any scoring error, it returns
// false.
func (c *Classifier) DetectStartSymbol(ctx context.Context, seg eeg.Segment) bool {
	if ctx.Err() != nil {
		return false
	}
	c.mu.RLock()
	det := c.detector
	c.mu.RUnlock()
	if det == nil {
		return false
	}

	p, err := det.Probability(Features(seg))
	if err != nil {
		c.log.Debug().Err(err).Msg("start-symbol scoring failed")
		return false
	}
	detected := p > c.threshold
	c.metrics.RecordStartSymbolCheck(detected)
	return detected
}

// TrainLetters fits the base letter model from labelled segments and
// persists it. Each segment is featurised per sub-window, the same way
// Classify sees data.
func (c *Classifier) TrainLetters(ctx context.Context, labelled map[rune][]eeg.Segment) error {
	model, err := c.fitLetters(labelled)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.store != nil {
		if err := store.SetValue(ctx, c.store, LettersKey, model); err != nil {
			return fmt.Errorf("persist letter model: %w", err)
		}
	}
	c.SetLetterModel(model)
	c.log.Info().Int("letters", len(model.Symbols)).Float64("scale", model.Scale).Msg("letter model trained")
	return nil
}

func (c *Classifier) fitLetters(labelled map[rune][]eeg.Segment) (*CentroidModel, error) {
	examples := make(map[rune][][]float64, len(labelled))
	for sym, segs := range labelled {
		if !c.alphabet.Contains(sym) {
			return nil, fmt.Errorf("%w: %c", eeg.ErrUnknownSymbol, sym)
		}
		for _, seg := range segs {
			for _, sub := range c.segmenter.ToSubSegments(seg) {
				examples[sym] = append(examples[sym], Features(sub))
			}
		}
	}
	return FitCentroids(c.alphabet.Symbols(), examples)
}

// TrainStartSymbol fits the start-symbol detector treating every segment as
// a positive example, and persists it under StartSymbolKey.
func (c *Classifier) TrainStartSymbol(ctx context.Context, segments []eeg.Segment) error {
	if !c.HasLetterModel() {
		return ErrBaseModelNotLoaded
	}
	det, n, err := fitStartSymbol(segments)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.store != nil {
		if err := store.SetValue(ctx, c.store, StartSymbolKey, det); err != nil {
			return fmt.Errorf("persist start-symbol detector: %w", err)
		}
	}
	c.mu.Lock()
	c.detector = det
	c.mu.Unlock()
	c.log.Info().Int("examples", n).Msg("start-symbol detector trained")
	return nil
}

func fitStartSymbol(segments []eeg.Segment) (*StartDetector, int, error) {
	examples := make([][]float64, 0, len(segments))
	for _, seg := range segments {
		if seg.Len() == 0 {
			continue
		}
		examples = append(examples, Features(seg))
	}
	det, err := FitDetector(examples)
	return det, len(examples), err
}

// Train fits the letter model and the start-symbol detector from the same
// labelled set. Both are fitted before anything is persisted or installed,
// so a failure at any step leaves the previous models in place.
func (c *Classifier) Train(ctx context.Context, labelled map[rune][]eeg.Segment) error {
	letters, err := c.fitLetters(labelled)
	if err != nil {
		return fmt.Errorf("train letters: %w", err)
	}
	var all []eeg.Segment
	for _, sym := range c.alphabet.Symbols() {
		all = append(all, labelled[sym]...)
	}
	det, n, err := fitStartSymbol(all)
	if err != nil {
		return fmt.Errorf("train start symbol: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.store != nil {
		if err := c.persistPair(ctx, letters, det); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.letters = letters
	c.detector = det
	c.mu.Unlock()
	c.log.Info().
		Int("letters", len(letters.Symbols)).
		Float64("scale", letters.Scale).
		Int("examples", n).
		Msg("letter model and start-symbol detector trained")
	return nil
}

// persistPair writes both models. If the detector write fails the previous
// letter model bytes are put back, or the key removed when there were none.
func (c *Classifier) persistPair(ctx context.Context, letters *CentroidModel, det *StartDetector) error {
	prev, err := c.store.Get(ctx, LettersKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read letter model: %w", err)
	}
	if err := store.SetValue(ctx, c.store, LettersKey, letters); err != nil {
		return fmt.Errorf("persist letter model: %w", err)
	}
	if err := store.SetValue(ctx, c.store, StartSymbolKey, det); err != nil {
		var rollback error
		if prev != nil {
			rollback = c.store.Set(context.WithoutCancel(ctx), LettersKey, prev)
		} else {
			rollback = c.store.Delete(context.WithoutCancel(ctx), LettersKey)
		}
		if rollback != nil {
			c.log.Error().Err(rollback).Msg("restoring previous letter model failed")
		}
		return fmt.Errorf("persist start-symbol detector: %w", err)
	}
	return nil
}
