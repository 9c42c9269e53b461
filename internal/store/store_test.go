package store

import (
	"context"
	"errors"
	"testing"
)

func newBadgerStore(t *testing.T) Store {
	t.Helper()
	s, err := NewBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	impls := map[string]func(*testing.T) Store{
		"badger": newBadgerStore,
		"memory": func(*testing.T) Store { return NewMemory() },
	}

	for name, newStore := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			if _, err := s.Get(ctx, "models/start-symbol"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.Set(ctx, "models/start-symbol", []byte("v1")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "models/letters", []byte("v2")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "sessions/x", []byte("v3")); err != nil {
				t.Fatalf("Set: %v", err)
			}

			got, err := s.Get(ctx, "models/start-symbol")
			if err != nil || string(got) != "v1" {
				t.Fatalf("Get = %q, %v", got, err)
			}

			keys, err := s.Keys(ctx, "models/")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "models/letters" || keys[1] != "models/start-symbol" {
				t.Errorf("Keys = %v", keys)
			}

			if err := s.Delete(ctx, "models/letters"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, "models/letters"); err != nil {
				t.Errorf("Delete of absent key: %v", err)
			}
			if _, err := s.Get(ctx, "models/letters"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after Delete, got %v", err)
			}
		})
	}
}

func TestValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	type detector struct {
		Centroid []float64 `msgpack:"centroid"`
		Scale    float64   `msgpack:"scale"`
	}
	in := detector{Centroid: []float64{1, 2, 3}, Scale: 0.5}
	if err := SetValue(ctx, s, "models/start-symbol", in); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	var out detector
	if err := GetValue(ctx, s, "models/start-symbol", &out); err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if out.Scale != 0.5 || len(out.Centroid) != 3 || out.Centroid[2] != 3 {
		t.Errorf("decoded %+v", out)
	}

	if err := GetValue(ctx, s, "missing", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewBadgerRequiresDir(t *testing.T) {
	if _, err := NewBadger(BadgerOptions{}); err == nil {
		t.Error("expected error without Dir")
	}
}

func TestBadgerPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	if err := s.Set(ctx, "models/letters", []byte("model")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = NewBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "models/letters")
	if err != nil || string(got) != "model" {
		t.Errorf("after reopen Get = %q, %v", got, err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend string
		dir     string
		wantErr bool
		memory  bool
	}{
		{"memory", "", false, true},
		{"badger", t.TempDir(), false, false},
		{"", t.TempDir(), false, false},
		{"badger", "", true, false},
		{"sqlite", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(tt.backend, tt.dir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if _, ok := s.(*Memory); ok != tt.memory {
				t.Errorf("backend %q gave %T", tt.backend, s)
			}
		})
	}
}
