package output

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Backend delivers text to the desktop.
type Backend interface {
	Name() string
	// Available reports why the backend cannot be used, or nil.
	Available() error
	Deliver(ctx context.Context, text string) error
}

// Test seams.
var (
	lookPath   = exec.LookPath
	runCommand = func(ctx context.Context, stdin string, name string, args ...string) error {
		cmd := exec.CommandContext(ctx, name, args...)
		if stdin != "" {
			cmd.Stdin = strings.NewReader(stdin)
		}
		return cmd.Run()
	}
)

func requireTool(tool, pkg string) error {
	if _, err := lookPath(tool); err != nil {
		return fmt.Errorf("%s not found: %w (install %s)", tool, err, pkg)
	}
	return nil
}

// wtypeBackend types into the focused Wayland window.
type wtypeBackend struct{}

func (wtypeBackend) Name() string { return "wtype" }

func (wtypeBackend) Available() error { return requireTool("wtype", "wtype") }

func (wtypeBackend) Deliver(ctx context.Context, text string) error {
	if err := runCommand(ctx, "", "wtype", "--", text); err != nil {
		return fmt.Errorf("wtype failed: %w", err)
	}
	return nil
}

// ydotoolBackend types through the uinput daemon and works outside Wayland.
type ydotoolBackend struct{}

func (ydotoolBackend) Name() string { return "ydotool" }

func (y ydotoolBackend) Available() error {
	if err := requireTool("ydotool", "ydotool"); err != nil {
		return err
	}
	if _, err := lookPath("ydotoold"); err != nil {
		return nil
	}
	sock := ydotoolSocket()
	if sock == "" {
		return fmt.Errorf("ydotoold socket not found - ensure ydotoold is running")
	}
	// ydotoold >= 1.0.4 listens on a datagram socket
	conn, err := net.Dial("unixgram", sock)
	if err != nil {
		conn, err = net.DialTimeout("unix", sock, 500*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ydotoold not responding at %s: %w", sock, err)
	}
	conn.Close()
	return nil
}

func (ydotoolBackend) Deliver(ctx context.Context, text string) error {
	if err := runCommand(ctx, "", "ydotool", "type", "--", text); err != nil {
		return fmt.Errorf("ydotool failed: %w", err)
	}
	return nil
}

func ydotoolSocket() string {
	if sock := os.Getenv("YDOTOOL_SOCKET"); sock != "" {
		if _, err := os.Stat(sock); err == nil {
			return sock
		}
	}
	paths := []string{
		fmt.Sprintf("/run/user/%d/.ydotool_socket", os.Getuid()),
		"/tmp/.ydotool_socket",
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append([]string{filepath.Join(xdg, ".ydotool_socket")}, paths...)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// clipboardBackend copies the text with wl-copy.
type clipboardBackend struct{}

func (clipboardBackend) Name() string { return "clipboard" }

func (clipboardBackend) Available() error { return requireTool("wl-copy", "wl-clipboard") }

func (clipboardBackend) Deliver(ctx context.Context, text string) error {
	if err := runCommand(ctx, text, "wl-copy"); err != nil {
		return fmt.Errorf("wl-copy failed: %w", err)
	}
	return nil
}

// Backends lists every known backend by name.
func Backends() map[string]Backend {
	return map[string]Backend{
		"wtype":     wtypeBackend{},
		"ydotool":   ydotoolBackend{},
		"clipboard": clipboardBackend{},
	}
}
