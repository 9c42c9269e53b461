package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/leonardotrapani/neurotype/internal/config"
)

func editDevice(cfg *config.Config) error {
	url := cfg.Stream.URL
	clientID := cfg.Stream.ClientID
	clientSecret := cfg.Stream.ClientSecret
	headset := cfg.Stream.Headset
	dialTimeout := cfg.Stream.DialTimeout.String()
	autoConnect := cfg.Stream.AutoConnect

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Headset service URL").
				Description("WebSocket endpoint of the local headset service").
				Value(&url).
				Validate(validateStreamURL),
			huh.NewInput().
				Title("Client ID").
				Value(&clientID),
			huh.NewInput().
				Title("Client secret").
				EchoMode(huh.EchoModePassword).
				Value(&clientSecret),
			huh.NewInput().
				Title("Headset").
				Description("Leave empty to use the first headset found").
				Value(&headset),
			huh.NewInput().
				Title("Dial timeout").
				Value(&dialTimeout).
				Validate(validateDuration),
			huh.NewConfirm().
				Title("Connect when the daemon starts?").
				Value(&autoConnect),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Stream.URL = strings.TrimSpace(url)
	cfg.Stream.ClientID = strings.TrimSpace(clientID)
	cfg.Stream.ClientSecret = clientSecret
	cfg.Stream.Headset = strings.TrimSpace(headset)
	cfg.Stream.DialTimeout, _ = time.ParseDuration(strings.TrimSpace(dialTimeout))
	cfg.Stream.AutoConnect = autoConnect
	return nil
}

func editTraining(cfg *config.Config) error {
	alphabet := cfg.Training.Alphabet
	trainingCountdown := strconv.Itoa(cfg.Training.TrainingCountdown)
	restCountdown := strconv.Itoa(cfg.Training.RestCountdown)
	fallback := cfg.Classifier.Fallback
	threshold := strconv.FormatFloat(cfg.Classifier.Threshold, 'f', -1, 64)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Alphabet").
				Description("Letters to train, empty for the default alphabet").
				Value(&alphabet),
			huh.NewInput().
				Title("Seconds per letter").
				Value(&trainingCountdown).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Rest seconds between letters").
				Value(&restCountdown).
				Validate(validateNonNegativeInt),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("When no model exists").
				Options(
					huh.NewOption("Fail the recording", "fail"),
					huh.NewOption("Guess at random", "random"),
				).
				Value(&fallback),
			huh.NewInput().
				Title("Start symbol threshold").
				Description("Probability above which the start symbol counts as seen").
				Value(&threshold).
				Validate(validateProbability),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Training.Alphabet = strings.TrimSpace(alphabet)
	cfg.Training.TrainingCountdown = atoi(trainingCountdown)
	cfg.Training.RestCountdown = atoi(restCountdown)
	cfg.Classifier.Fallback = fallback
	if f, err := strconv.ParseFloat(strings.TrimSpace(threshold), 64); err == nil {
		cfg.Classifier.Threshold = f
	}
	if _, err := cfg.Alphabet(); err != nil {
		fmt.Println(StyleWarning.Render("Alphabet is not usable: " + err.Error()))
	}
	return nil
}
