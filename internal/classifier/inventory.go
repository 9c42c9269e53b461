package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/leonardotrapani/neurotype/internal/store"
)

// ModelInfo describes one persisted model.
type ModelInfo struct {
	Name   string
	Key    string
	Detail string
}

var modelKeys = map[string]string{
	"letters":      LettersKey,
	"start-symbol": StartSymbolKey,
}

// ListModels reports the models persisted in st.
func ListModels(ctx context.Context, st store.Store) ([]ModelInfo, error) {
	var out []ModelInfo

	var letters CentroidModel
	switch err := store.GetValue(ctx, st, LettersKey, &letters); {
	case err == nil:
		out = append(out, ModelInfo{
			Name:   "letters",
			Key:    LettersKey,
			Detail: fmt.Sprintf("%d letters: %s", len(letters.Symbols), string(letters.Symbols)),
		})
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	var det StartDetector
	switch err := store.GetValue(ctx, st, StartSymbolKey, &det); {
	case err == nil:
		out = append(out, ModelInfo{
			Name:   "start-symbol",
			Key:    StartSymbolKey,
			Detail: fmt.Sprintf("%d features", len(det.Centroid)),
		})
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	return out, nil
}

// RemoveModel deletes a persisted model by name, or every model for "all".
func RemoveModel(ctx context.Context, st store.Store, name string) error {
	if name == "all" {
		for _, key := range modelKeys {
			if err := st.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	}
	key, ok := modelKeys[name]
	if !ok {
		return fmt.Errorf("unknown model %q (want letters, start-symbol or all)", name)
	}
	return st.Delete(ctx, key)
}
