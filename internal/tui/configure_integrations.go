package tui

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/leonardotrapani/neurotype/internal/config"
)

func editIntegrations(cfg *config.Config) error {
	triggerEnabled := cfg.Trigger.Enabled
	stride := strconv.Itoa(cfg.Trigger.Stride)
	cooldown := cfg.Trigger.Cooldown.String()

	eventsEnabled := cfg.Events.Enabled
	brokers := strings.Join(cfg.Events.Brokers, ", ")
	topicRecordings := cfg.Events.TopicRecordings
	topicTraining := cfg.Events.TopicTraining

	outputEnabled := cfg.Output.Enabled
	outputBackends := strings.Join(cfg.Output.Backends, ", ")

	metricsEnabled := cfg.Metrics.Enabled
	metricsAddr := cfg.Metrics.Addr

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Start recording on the trained start symbol?").
				Value(&triggerEnabled),
			huh.NewInput().
				Title("Samples between checks").
				Value(&stride).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Cooldown after a trigger").
				Value(&cooldown).
				Validate(validateDuration),
		).Title("Start symbol trigger"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Type processed text into the focused window?").
				Value(&outputEnabled),
			huh.NewInput().
				Title("Backends").
				Description("Tried in order: wtype, ydotool, clipboard").
				Value(&outputBackends),
		).Title("Text output"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Publish results to Kafka?").
				Value(&eventsEnabled),
			huh.NewInput().
				Title("Brokers").
				Description("Comma separated host:port list").
				Value(&brokers),
			huh.NewInput().
				Title("Recordings topic").
				Value(&topicRecordings),
			huh.NewInput().
				Title("Training topic").
				Value(&topicTraining),
		).Title("Events"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Serve Prometheus metrics?").
				Value(&metricsEnabled),
			huh.NewInput().
				Title("Listen address").
				Value(&metricsAddr),
		).Title("Metrics"),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Trigger.Enabled = triggerEnabled
	cfg.Trigger.Stride = atoi(stride)
	cfg.Trigger.Cooldown, _ = time.ParseDuration(strings.TrimSpace(cooldown))

	cfg.Events.Enabled = eventsEnabled
	cfg.Events.Brokers = splitList(brokers)
	cfg.Events.TopicRecordings = strings.TrimSpace(topicRecordings)
	cfg.Events.TopicTraining = strings.TrimSpace(topicTraining)

	cfg.Output.Enabled = outputEnabled
	cfg.Output.Backends = splitList(outputBackends)

	cfg.Metrics.Enabled = metricsEnabled
	cfg.Metrics.Addr = strings.TrimSpace(metricsAddr)
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	kind := cfg.Notifications.Type
	if kind == "" {
		kind = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Value(&enabled),
			huh.NewSelect[string]().
				Title("Notification type").
				Options(
					huh.NewOption("Desktop (notify-send)", "desktop"),
					huh.NewOption("Log only", "log"),
				).
				Value(&kind),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = kind
	return nil
}
