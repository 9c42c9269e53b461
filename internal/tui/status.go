package tui

import (
	"fmt"
	"strings"

	"github.com/leonardotrapani/neurotype/internal/daemon"
	"github.com/leonardotrapani/neurotype/internal/pipeline"
	"github.com/leonardotrapani/neurotype/internal/training"
)

// RenderStatus formats a daemon status report for the terminal.
func RenderStatus(st daemon.Status) string {
	var b strings.Builder

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render(fmt.Sprintf("%-11s", label)), value)
	}

	device := StyleError.Render("disconnected")
	if st.Connected {
		device = StyleWarning.Render(st.StreamState)
		if st.StreamState == "streaming" {
			device = StyleSuccess.Render("streaming")
		}
	}
	row("Device", device)
	row("Recording", renderRecording(st.Recording))
	row("Training", renderTraining(st.Training))
	row("Models", fmt.Sprintf("letters %s  start symbol %s", yesNo(st.Models.Letters), yesNo(st.Models.StartSymbol)))
	if st.Trigger {
		row("Trigger", StyleHighlight.Render("watching for start symbol"))
	}

	return StyleBox.Render(strings.TrimRight(b.String(), "\n"))
}

func renderRecording(s pipeline.Snapshot) string {
	switch s.Status {
	case pipeline.GettingReady:
		return StyleHighlight.Render(fmt.Sprintf("get ready... %d", s.Countdown))
	case pipeline.Collecting:
		return StyleHighlight.Render(fmt.Sprintf("collecting (%d letters)", s.LettersRecorded))
	case pipeline.Processing:
		return StyleWarning.Render(fmt.Sprintf("processing %d%%", s.Progress))
	case pipeline.DataProcessed:
		text := s.Text
		if text == "" {
			text = "(no letters)"
		}
		return StyleSuccess.Render(text) + StyleMuted.Render(fmt.Sprintf("  raw %q", s.Raw))
	default:
		if s.Error != "" {
			return StyleError.Render(s.Error)
		}
		return StyleMuted.Render("idle")
	}
}

func renderTraining(s training.Snapshot) string {
	progress := fmt.Sprintf("%d/%d", len([]rune(s.Used)), s.Total)
	switch s.Phase {
	case training.Training:
		return StyleHighlight.Render(fmt.Sprintf("think %q... %d", s.Letter, s.Countdown)) +
			StyleMuted.Render("  "+progress)
	case training.Rest:
		return StyleWarning.Render(fmt.Sprintf("rest %d", s.Countdown)) + StyleMuted.Render("  "+progress)
	case training.Processing:
		return StyleWarning.Render(fmt.Sprintf("training on %d segments", s.Segments))
	case training.Complete:
		return StyleSuccess.Render(fmt.Sprintf("complete (%d letters, %d segments)", len([]rune(s.Used)), s.Segments))
	default:
		if s.Error != "" {
			return StyleError.Render(s.Error)
		}
		return StyleMuted.Render("not started")
	}
}

func yesNo(ok bool) string {
	if ok {
		return StyleSuccess.Render("yes")
	}
	return StyleMuted.Render("no")
}
