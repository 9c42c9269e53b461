package daemon

import (
	"github.com/leonardotrapani/neurotype/internal/bus"
	"github.com/leonardotrapani/neurotype/internal/pipeline"
	"github.com/leonardotrapani/neurotype/internal/training"
)

// Status is the body of a STATUS response.
type Status struct {
	Proto       string            `json:"proto"`
	Connected   bool              `json:"connected"`
	StreamState string            `json:"stream_state"`
	Recording   pipeline.Snapshot `json:"recording"`
	Training    training.Snapshot `json:"training"`
	Models      ModelStatus       `json:"models"`
	Trigger     bool              `json:"trigger"`
}

type ModelStatus struct {
	Letters     bool `json:"letters"`
	StartSymbol bool `json:"start_symbol"`
}

func (d *Daemon) Status() Status {
	return Status{
		Proto:       bus.ProtoVer,
		Connected:   d.link.Connected(),
		StreamState: d.link.State().String(),
		Recording:   d.recording.Snapshot(),
		Training:    d.training.Snapshot(),
		Models: ModelStatus{
			Letters:     d.classifier.HasLetterModel(),
			StartSymbol: d.classifier.HasDetector(),
		},
		Trigger: d.trigger.Running(),
	}
}
