// Package bus is the line protocol between the neurotype CLI and daemon over
// a unix socket.
package bus

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const SockName = "control.sock"
const PidName = "neurotype.pid"
const ProtoVer = "1.0"

const appDir = "neurotype"

// Commands understood by the daemon, one per line.
const (
	CmdRecordStart = "record start"
	CmdRecordStop  = "record stop"
	CmdRecordAbort = "record abort"
	CmdRecordReset = "record reset"
	CmdTrainStart  = "train start"
	CmdTrainAbort  = "train abort"
	CmdTrainReset  = "train reset"
	CmdConnect     = "connect"
	CmdDisconnect  = "disconnect"
	CmdStatus      = "status"
	CmdVersion     = "version"
	CmdQuit        = "quit"
)

// Response prefixes.
const (
	RespOK     = "OK"
	RespErr    = "ERR"
	RespStatus = "STATUS"
)

// ErrDaemon wraps an ERR response.
var ErrDaemon = errors.New("daemon error")

const dialTimeout = 2 * time.Second

type socketManager struct {
	path string
}

type pidManager struct {
	path string
}

func runtimeDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir), nil
}

func getSockPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

func getPidPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

// SockPath is ~/.cache/neurotype/control.sock
func SockPath() (string, error) { return getSockPath() }

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.DialTimeout("unix", s.path, dialTimeout)
}

func (s *socketManager) send(cmd string) (string, error) {
	c, err := s.dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if _, err := fmt.Fprintf(c, "%s\n", cmd); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

func defaultSocket() (*socketManager, error) {
	path, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: path}, nil
}

func Listen() (net.Listener, error) {
	s, err := defaultSocket()
	if err != nil {
		return nil, err
	}
	return s.listen()
}

func Dial() (net.Conn, error) {
	s, err := defaultSocket()
	if err != nil {
		return nil, err
	}
	return s.dial()
}

// SendCommand sends one command line and returns the raw response line.
func SendCommand(cmd string) (string, error) {
	s, err := defaultSocket()
	if err != nil {
		return "", err
	}
	return s.send(cmd)
}

// Call sends cmd and returns the response body, or ErrDaemon for ERR replies.
func Call(cmd string) (string, error) {
	resp, err := SendCommand(cmd)
	if err != nil {
		return "", err
	}
	return ParseResponse(resp)
}

// ParseResponse strips the status prefix from a response line.
func ParseResponse(line string) (string, error) {
	line = strings.TrimRight(line, "\r\n")
	kind, body, _ := strings.Cut(line, " ")
	switch kind {
	case RespOK, RespStatus:
		return body, nil
	case RespErr:
		return "", fmt.Errorf("%w: %s", ErrDaemon, body)
	default:
		return "", fmt.Errorf("malformed response %q", line)
	}
}

// FormatOK, FormatErr and FormatStatus build response lines.
func FormatOK(msg string) string     { return RespOK + " " + msg + "\n" }
func FormatErr(err error) string     { return RespErr + " " + err.Error() + "\n" }
func FormatStatus(body string) string { return RespStatus + " " + body + "\n" }

func defaultPid() (*pidManager, error) {
	path, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: path}, nil
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// checkExisting fails when a live daemon owns the pid file and removes stale
// or unreadable pid files.
func (p *pidManager) checkExisting() error {
	pidData, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || pid <= 0 {
		_ = os.Remove(p.path)
		return nil
	}

	if !p.isProcessAlive(pid) {
		_ = os.Remove(p.path)
		return nil
	}
	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (p *pidManager) isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func CheckExistingDaemon() error {
	p, err := defaultPid()
	if err != nil {
		return err
	}
	return p.checkExisting()
}

func CreatePidFile() error {
	p, err := defaultPid()
	if err != nil {
		return err
	}
	return p.create()
}

func RemovePidFile() error {
	p, err := defaultPid()
	if err != nil {
		return err
	}
	return p.remove()
}
