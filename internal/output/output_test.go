package output

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type call struct {
	name  string
	args  []string
	stdin string
}

// stubTools makes only the named tools resolvable and records every command.
func stubTools(t *testing.T, installed []string, fail map[string]error) *[]call {
	t.Helper()
	oldLook, oldRun := lookPath, runCommand
	t.Cleanup(func() { lookPath, runCommand = oldLook, oldRun })

	have := map[string]bool{}
	for _, tool := range installed {
		have[tool] = true
	}
	lookPath = func(file string) (string, error) {
		if have[file] {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}

	var calls []call
	runCommand = func(_ context.Context, stdin string, name string, args ...string) error {
		calls = append(calls, call{name: name, args: args, stdin: stdin})
		return fail[name]
	}
	return &calls
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		backends []string
		wantErr  bool
	}{
		{"single", []string{"clipboard"}, false},
		{"ordered", []string{"wtype", "ydotool", "clipboard"}, false},
		{"empty", nil, true},
		{"unknown", []string{"xdotool"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Backends: tt.backends})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeliverFallsBack(t *testing.T) {
	calls := stubTools(t, []string{"wtype", "wl-copy"}, map[string]error{"wtype": errors.New("no focus")})

	d, err := New(Config{Backends: []string{"ydotool", "wtype", "clipboard"}})
	if err != nil {
		t.Fatal(err)
	}
	name, err := d.Deliver(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if name != "clipboard" {
		t.Errorf("delivered by %q, want clipboard", name)
	}

	if len(*calls) != 2 {
		t.Fatalf("calls = %+v", *calls)
	}
	if got := (*calls)[0]; got.name != "wtype" || strings.Join(got.args, " ") != "-- hello" {
		t.Errorf("wtype call = %+v", got)
	}
	if got := (*calls)[1]; got.name != "wl-copy" || got.stdin != "hello" {
		t.Errorf("wl-copy call = %+v", got)
	}
}

func TestDeliverYdotool(t *testing.T) {
	calls := stubTools(t, []string{"ydotool"}, nil)

	d, err := New(Config{Backends: []string{"ydotool"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Deliver(context.Background(), "hi there"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := (*calls)[0]; got.name != "ydotool" || strings.Join(got.args, " ") != "type -- hi there" {
		t.Errorf("ydotool call = %+v", got)
	}
}

func TestDeliverNothingAvailable(t *testing.T) {
	stubTools(t, nil, nil)

	d, err := New(Config{Backends: []string{"wtype", "clipboard"}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Deliver(context.Background(), "hello")
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if !strings.Contains(err.Error(), "wl-clipboard") {
		t.Errorf("error should name the missing package: %v", err)
	}
}

func TestDeliverEmptyText(t *testing.T) {
	calls := stubTools(t, []string{"wl-copy"}, nil)
	d, err := New(Config{Backends: []string{"clipboard"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Deliver(context.Background(), "  "); err == nil {
		t.Error("empty text delivered")
	}
	if len(*calls) != 0 {
		t.Errorf("commands run for empty text: %+v", *calls)
	}
}

func TestCheck(t *testing.T) {
	stubTools(t, []string{"wtype"}, nil)
	d, err := New(Config{Backends: []string{"wtype", "clipboard"}})
	if err != nil {
		t.Fatal(err)
	}
	got := d.Check()
	if got["wtype"] != nil {
		t.Errorf("wtype: %v", got["wtype"])
	}
	if got["clipboard"] == nil {
		t.Error("clipboard reported available without wl-copy")
	}
}
