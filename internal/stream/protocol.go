package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/leonardotrapani/neurotype/internal/eeg"
)

const (
	methodAuthorize     = "authorize"
	methodCreateSession = "createSession"
	methodSubscribe     = "subscribe"

	streamEEG = "eeg"

	// DefaultQuality is assigned to samples whose payload carries no quality.
	DefaultQuality = 100.0
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// inbound covers both RPC responses and stream data events.
type inbound struct {
	ID     *int            `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`

	EEG  []any    `json:"eeg,omitempty"`
	Time *float64 `json:"time,omitempty"`
	SID  string   `json:"sid,omitempty"`
}

type authorizeParams struct {
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

type authorizeResult struct {
	CortexToken string `json:"cortexToken"`
}

type createSessionParams struct {
	CortexToken string `json:"cortexToken,omitempty"`
	Headset     string `json:"headset,omitempty"`
	Status      string `json:"status"`
}

type createSessionResult struct {
	ID string `json:"id"`
}

type subscribeParams struct {
	CortexToken string   `json:"cortexToken,omitempty"`
	Session     string   `json:"session"`
	Streams     []string `json:"streams"`
}

// RPCError is a JSON-RPC error returned by the device service.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// toSample converts an eeg data event. time is in seconds; the wall clock is
// used when it is absent. Non-numeric payload entries (markers) are skipped.
func toSample(msg inbound, now time.Time) eeg.Sample {
	ts := now.UnixMilli()
	if msg.Time != nil {
		ts = int64(*msg.Time * 1000)
	}
	channels := make([]float64, 0, len(msg.EEG))
	for _, v := range msg.EEG {
		if f, ok := v.(float64); ok {
			channels = append(channels, f)
		}
	}
	return eeg.Sample{
		Timestamp: ts,
		Channels:  channels,
		Quality:   DefaultQuality,
	}
}
