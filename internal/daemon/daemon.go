// Package daemon runs the neurotype service: it owns the device link, both
// orchestrators and the control socket.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/leonardotrapani/neurotype/internal/bus"
	"github.com/leonardotrapani/neurotype/internal/classifier"
	"github.com/leonardotrapani/neurotype/internal/config"
	"github.com/leonardotrapani/neurotype/internal/countdown"
	"github.com/leonardotrapani/neurotype/internal/events"
	"github.com/leonardotrapani/neurotype/internal/logging"
	"github.com/leonardotrapani/neurotype/internal/metrics"
	"github.com/leonardotrapani/neurotype/internal/notify"
	"github.com/leonardotrapani/neurotype/internal/pipeline"
	"github.com/leonardotrapani/neurotype/internal/store"
	"github.com/leonardotrapani/neurotype/internal/stream"
	"github.com/leonardotrapani/neurotype/internal/training"
	"github.com/leonardotrapani/neurotype/internal/trigger"
)

const shutdownTimeout = 5 * time.Second

// Options overrides components New would otherwise build from config.
type Options struct {
	Notifier  notify.Notifier
	Store     store.Store
	Scheduler countdown.Scheduler
	// Manager enables hot reload of logging and notification settings.
	Manager *config.Manager
	// Output replaces the desktop delivery built from the output section.
	Output TextSink
}

// TextSink receives processed text, typically the focused window.
type TextSink interface {
	Deliver(ctx context.Context, text string) (string, error)
}

type Daemon struct {
	cfg       *config.Config
	manager   *config.Manager
	log       zerolog.Logger
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	scheduler countdown.Scheduler

	link       *stream.Link
	store      store.Store
	classifier *classifier.Classifier
	recording  *pipeline.Orchestrator
	training   *training.Orchestrator
	trigger    *trigger.Watcher
	events     *events.Publisher
	output     TextSink
	metricsSrv *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	notify   notify.Notifier
	reported map[string]string

	wg sync.WaitGroup
}

func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon: nil config")
	}
	n := opts.Notifier
	if n == nil {
		n = notify.New(cfg.NotifierType())
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = countdown.RealScheduler{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:       cfg,
		manager:   opts.Manager,
		log:       logging.WithComponent("daemon"),
		metrics:   metrics.New(reg),
		registry:  reg,
		scheduler: sched,
		store:     opts.Store,
		output:    opts.Output,
		ctx:       ctx,
		cancel:    cancel,
		notify:    n,
		reported:  make(map[string]string),
	}
	if err := d.build(cfg); err != nil {
		cancel()
		if d.store != nil && opts.Store == nil {
			d.store.Close()
		}
		return nil, err
	}
	return d, nil
}

func (d *Daemon) notifier() notify.Notifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notify
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	logging.Init(cfg.ToLoggingConfig())
	d.mu.Lock()
	d.notify = notify.New(cfg.NotifierType())
	d.mu.Unlock()
	d.log.Info().Msg("applied logging and notification settings; restart to apply other changes")
}

// Run serves the control socket until a quit command or signal.
func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			d.log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	d.startBackground()
	defer d.shutdown()

	d.log.Info().Str("proto", bus.ProtoVer).Msg("daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				d.log.Info().Msg("shutdown requested")
				return nil
			}
			d.log.Error().Err(err).Msg("accept error")
			return fmt.Errorf("accept failed: %w", err)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handle(c)
		}()
	}
}

func (d *Daemon) startBackground() {
	if d.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.metrics.Handler())
		d.metricsSrv = &http.Server{
			Addr:              d.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.log.Info().Str("addr", d.cfg.Metrics.Addr).Msg("serving metrics")
			if err := d.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	if d.manager != nil {
		d.manager.OnChange(d.applyConfig)
		if err := d.manager.StartWatching(d.ctx); err != nil {
			d.log.Warn().Err(err).Msg("config hot reload disabled")
		}
	}

	if d.cfg.Stream.AutoConnect {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.link.Connect(d.ctx); err != nil {
				d.log.Warn().Err(err).Msg("auto-connect failed")
			}
		}()
	}

	d.startTrigger()
}

func (d *Daemon) shutdown() {
	d.cancel()
	d.trigger.Stop()
	d.recording.Close()
	d.training.Close()
	d.link.Disconnect()

	if d.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = d.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if d.manager != nil {
		d.manager.Stop()
	}

	d.wg.Wait()
	d.trigger.Stop()

	if err := d.events.Close(); err != nil {
		d.log.Warn().Err(err).Msg("failed to close event publisher")
	}
	if err := d.store.Close(); err != nil {
		d.log.Warn().Err(err).Msg("failed to close model store")
	}
	d.log.Info().Msg("daemon stopped")
}

// Stop asks a running daemon to exit.
func (d *Daemon) Stop() { d.cancel() }

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		d.log.Warn().Err(err).Msg("client read error")
		fmt.Fprint(c, bus.FormatErr(fmt.Errorf("read_error: %w", err)))
		return
	}
	cmd := strings.Join(strings.Fields(line), " ")
	if cmd == "" {
		fmt.Fprint(c, bus.FormatErr(errors.New("empty")))
		return
	}
	d.log.Debug().Str("cmd", cmd).Msg("command received")
	fmt.Fprint(c, d.Dispatch(cmd))
}

// Dispatch executes one bus command and returns the response line.
func (d *Daemon) Dispatch(cmd string) string {
	var err error
	switch cmd {
	case bus.CmdRecordStart:
		err = d.recording.Start()
	case bus.CmdRecordStop:
		err = d.recording.Stop()
	case bus.CmdRecordAbort:
		err = d.recording.Abort()
	case bus.CmdRecordReset:
		err = d.recording.Reset()
	case bus.CmdTrainStart:
		err = d.training.Start()
	case bus.CmdTrainAbort:
		err = d.training.Abort()
	case bus.CmdTrainReset:
		err = d.training.Reset()
	case bus.CmdConnect:
		err = d.link.Connect(d.ctx)
		if errors.Is(err, stream.ErrAlreadyConnected) {
			err = nil
		}
	case bus.CmdDisconnect:
		d.link.Disconnect()
	case bus.CmdStatus:
		body, err := json.Marshal(d.Status())
		if err != nil {
			return bus.FormatErr(err)
		}
		return bus.FormatStatus(string(body))
	case bus.CmdVersion:
		return bus.FormatStatus("proto=" + bus.ProtoVer)
	case bus.CmdQuit:
		d.cancel()
		return bus.FormatOK("quitting")
	default:
		d.log.Warn().Str("cmd", cmd).Msg("unknown command")
		return bus.FormatErr(fmt.Errorf("unknown command %q", cmd))
	}

	if err != nil {
		return bus.FormatErr(err)
	}
	return bus.FormatOK(cmd)
}
