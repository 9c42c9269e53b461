package notify

import (
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/logging"
)

const appName = "Neurotype"

// Notifier surfaces user-visible outcomes of the recording and training flows.
type Notifier interface {
	Processed(text string)
	TrainingComplete(letters int)
	Error(msg string)
}

// New returns the notifier for a configured backend: "desktop", "log" or
// "none". Unknown values fall back to log.
func New(backend string) Notifier {
	switch backend {
	case "desktop":
		return Desktop{}
	case "none", "nop":
		return Nop{}
	default:
		return Log{}
	}
}

// runCommand is swapped in tests.
var runCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

type Desktop struct{}

func (d Desktop) Processed(text string) {
	d.send("normal", appName+": Text Ready", text)
}

func (d Desktop) TrainingComplete(letters int) {
	d.send("normal", appName+": Training Complete", fmt.Sprintf("Trained on %d letters", letters))
}

func (d Desktop) Error(msg string) {
	d.send("critical", appName+": Error", msg)
}

func (Desktop) send(urgency, title, body string) {
	if err := runCommand("notify-send", "-a", appName, "-u", urgency, title, body); err != nil {
		log := logging.WithComponent("notify")
		log.Warn().Err(err).Str("title", title).Msg("failed to send notification")
	}
}

// Log writes notifications to the daemon log instead of the desktop.
type Log struct{}

func (Log) logger() zerolog.Logger { return logging.WithComponent("notify") }

func (l Log) Processed(text string) {
	log := l.logger()
	log.Info().Str("text", text).Msg(appName + ": Text Ready")
}

func (l Log) TrainingComplete(letters int) {
	log := l.logger()
	log.Info().Int("letters", letters).Msg(appName + ": Training Complete")
}

func (l Log) Error(msg string) {
	log := l.logger()
	log.Error().Str("detail", msg).Msg(appName + ": Error")
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) Processed(string)     {}
func (Nop) TrainingComplete(int) {}
func (Nop) Error(string)         {}
