// Package stream maintains the websocket link to the EEG device service and
// fans samples, connectivity changes and errors out to subscribers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/eeg"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/metrics"
)

// State is the handshake position of a Link.
type State int

const (
	StateDisconnected State = iota
	StateDialing
	StateAuthorizing
	StateCreatingSession
	StateSubscribing
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateDialing:
		return "dialing"
	case StateAuthorizing:
		return "authorizing"
	case StateCreatingSession:
		return "creating_session"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	ErrAlreadyConnected = errors.New("stream already connected")
	ErrConnectionLost   = errors.New("connection to EEG device closed or refused")
	ErrDialFailed       = errors.New("failed to connect to EEG device")
)

// Config configures a Link.
type Config struct {
	URL          string
	ClientID     string
	ClientSecret string
	Headset      string
	DialTimeout  time.Duration
}

// Link is the device connection. The zero value is not usable; use New.
type Link struct {
	cfg     Config
	dialer  *websocket.Dialer
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time

	seq     atomic.Uint64
	samples *Registry[eeg.Sample]
	status  *Registry[bool]
	errs    *Registry[error]

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	token     string
	sessionID string
	nextID    int
	pending   map[int]string
	dialedAt  time.Time
	closing   bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func New(cfg Config, m *metrics.Metrics) *Link {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	l := &Link{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		metrics: m,
		log:     logging.WithComponent("stream"),
		now:     time.Now,
		pending: make(map[int]string),
	}
	l.samples = NewRegistry[eeg.Sample](&l.seq)
	l.status = NewRegistry[bool](&l.seq)
	l.errs = NewRegistry[error](&l.seq)
	return l
}

// SubscribeSamples registers fn for every sample delivered while streaming.
func (l *Link) SubscribeSamples(fn func(eeg.Sample)) Handle { return l.samples.Subscribe(fn) }

// SubscribeStatus registers fn for connectivity changes.
func (l *Link) SubscribeStatus(fn func(connected bool)) Handle { return l.status.Subscribe(fn) }

// SubscribeErrors registers fn for connectivity and protocol errors.
func (l *Link) SubscribeErrors(fn func(error)) Handle { return l.errs.Subscribe(fn) }

// Unsubscribe removes a subscription made with any Subscribe method.
func (l *Link) Unsubscribe(h Handle) bool {
	return l.samples.Unsubscribe(h) || l.status.Unsubscribe(h) || l.errs.Unsubscribe(h)
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected reports whether the socket is open, regardless of handshake progress.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

func (l *Link) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Connect dials the device service and starts the handshake. It returns once
// the authorize request is sent; progress is reported through State and the
// status listeners. Reconnecting after a failure is always a caller action.
// Only one Connect may be in flight; the dial slot is claimed under mu so a
// concurrent call gets ErrAlreadyConnected instead of a second socket.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.conn != nil || l.state != StateDisconnected {
		l.mu.Unlock()
		return ErrAlreadyConnected
	}
	l.state = StateDialing
	l.closing = false
	l.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.DialTimeout)
	defer cancel()

	l.log.Info().Str("url", l.cfg.URL).Msg("connecting to device")
	conn, resp, err := l.dialer.DialContext(dialCtx, l.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			l.log.Warn().Int("status", resp.StatusCode).Msg("dial rejected")
		}
		l.mu.Lock()
		l.state = StateDisconnected
		l.mu.Unlock()
		err = fmt.Errorf("%w: %v", ErrDialFailed, err)
		l.metrics.RecordStreamError("dial")
		l.status.Emit(false)
		l.errs.Emit(err)
		return err
	}

	l.mu.Lock()
	if l.closing {
		// Disconnect ran while the dial was in flight.
		l.state = StateDisconnected
		l.mu.Unlock()
		conn.Close()
		return ErrConnectionLost
	}
	l.conn = conn
	l.state = StateAuthorizing
	l.token = ""
	l.sessionID = ""
	l.pending = make(map[int]string)
	l.dialedAt = l.now()
	l.mu.Unlock()

	l.status.Emit(true)

	l.wg.Add(1)
	go l.readLoop(conn)

	if err := l.send(methodAuthorize, authorizeParams{
		ClientID:     l.cfg.ClientID,
		ClientSecret: l.cfg.ClientSecret,
	}); err != nil {
		l.Disconnect()
		return err
	}
	return nil
}

// Disconnect closes the socket and waits for the reader to exit.
func (l *Link) Disconnect() {
	l.mu.Lock()
	conn := l.conn
	l.closing = true
	l.mu.Unlock()

	if conn != nil {
		l.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.writeMu.Unlock()
		conn.Close()
	}
	l.wg.Wait()
}

func (l *Link) send(method string, params any) error {
	l.mu.Lock()
	conn := l.conn
	if conn == nil {
		l.mu.Unlock()
		return ErrConnectionLost
	}
	l.nextID++
	id := l.nextID
	l.pending[id] = method
	l.mu.Unlock()

	l.writeMu.Lock()
	err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	l.writeMu.Unlock()
	if err != nil {
		l.metrics.RecordStreamError("write")
		return fmt.Errorf("send %s: %w", method, err)
	}
	l.log.Debug().Str("method", method).Int("id", id).Msg("request sent")
	return nil
}

func (l *Link) readLoop(conn *websocket.Conn) {
	defer l.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.handleClosed(conn, err)
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			l.log.Debug().Err(err).Msg("ignoring unparsable message")
			continue
		}

		switch {
		case msg.ID != nil:
			l.handleResponse(msg)
		case msg.EEG != nil:
			if l.State() != StateStreaming {
				continue
			}
			l.metrics.RecordSample()
			l.samples.Emit(toSample(msg, l.now()))
		}
	}
}

func (l *Link) handleClosed(conn *websocket.Conn, err error) {
	l.mu.Lock()
	closing := l.closing
	if l.conn == conn {
		l.conn = nil
	}
	l.state = StateDisconnected
	l.mu.Unlock()

	l.metrics.RecordConnected(false)
	l.status.Emit(false)
	if closing {
		l.log.Info().Msg("disconnected")
		return
	}
	l.log.Warn().Err(err).Msg("connection lost")
	l.metrics.RecordStreamError("read")
	l.errs.Emit(fmt.Errorf("%w: %v", ErrConnectionLost, err))
}

// handleResponse advances the handshake. Responses are matched to requests
// by id; a response to an unknown id is ignored.
func (l *Link) handleResponse(msg inbound) {
	l.mu.Lock()
	method, ok := l.pending[*msg.ID]
	delete(l.pending, *msg.ID)
	l.mu.Unlock()
	if !ok {
		l.log.Debug().Int("id", *msg.ID).Msg("response for unknown request")
		return
	}

	if msg.Error != nil {
		err := &RPCError{Method: method, Code: msg.Error.Code, Message: msg.Error.Message}
		l.log.Error().Err(err).Msg("handshake step failed")
		l.metrics.RecordStreamError("rpc")
		l.errs.Emit(err)
		return
	}

	switch method {
	case methodAuthorize:
		var res authorizeResult
		if err := json.Unmarshal(msg.Result, &res); err != nil || res.CortexToken == "" {
			l.errs.Emit(&RPCError{Method: method, Message: "missing token in reply"})
			return
		}
		l.mu.Lock()
		l.token = res.CortexToken
		l.state = StateCreatingSession
		l.mu.Unlock()
		l.sendOrReport(methodCreateSession, createSessionParams{
			CortexToken: res.CortexToken,
			Headset:     l.cfg.Headset,
			Status:      "open",
		})

	case methodCreateSession:
		var res createSessionResult
		if err := json.Unmarshal(msg.Result, &res); err != nil || res.ID == "" {
			l.errs.Emit(&RPCError{Method: method, Message: "missing session id in reply"})
			return
		}
		l.mu.Lock()
		l.sessionID = res.ID
		l.state = StateSubscribing
		token := l.token
		l.mu.Unlock()
		l.sendOrReport(methodSubscribe, subscribeParams{
			CortexToken: token,
			Session:     res.ID,
			Streams:     []string{streamEEG},
		})

	case methodSubscribe:
		l.mu.Lock()
		l.state = StateStreaming
		elapsed := l.now().Sub(l.dialedAt)
		session := l.sessionID
		l.mu.Unlock()
		l.metrics.RecordConnected(true)
		l.metrics.RecordHandshake(elapsed.Seconds())
		l.log.Info().Str("session", session).Dur("handshake", elapsed).Msg("subscribed to eeg stream")
	}
}

func (l *Link) sendOrReport(method string, params any) {
	if err := l.send(method, params); err != nil {
		l.log.Error().Err(err).Msg("handshake send failed")
		l.errs.Emit(err)
	}
}
