package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interpret/internal/bus"
	"github.com/loqalabs/loqa-interpret/internal/config"
	"github.com/loqalabs/loqa-interpret/internal/coordinator"
	"github.com/loqalabs/loqa-interpret/internal/devices"
	"github.com/loqalabs/loqa-interpret/internal/natsserver"
	"github.com/loqalabs/loqa-interpret/internal/recognition"
	"github.com/loqalabs/loqa-interpret/internal/recorder"
	"github.com/loqalabs/loqa-interpret/internal/schedule"
	"github.com/loqalabs/loqa-interpret/internal/translation"
	"github.com/loqalabs/loqa-interpret/internal/tts"
	"golang.org/x/sync/errgroup"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	ready  atomic.Bool

	embedded    *natsserver.EmbeddedServer
	bus         *bus.Client
	directory   *devices.Directory
	scheduler   *schedule.TimerScheduler
	speaker     *tts.Speaker
	coordinator *coordinator.Coordinator
	bridge      *coordinator.Bridge
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the runtime until ctx is cancelled or a server fails.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	if err := r.startServices(ctx); err != nil {
		r.stopServices()
		_ = shutdownTelemetry(context.Background())
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	newAPI(r.coordinator, r.directory, r.logger).register(mux)

	servers := []*http.Server{{
		Addr:              fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		servers = append(servers, &http.Server{
			Addr:              bind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			r.logger.Info("http server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", servers[0].Addr))

	err = g.Wait()
	r.stopServices()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if tErr := shutdownTelemetry(shutdownCtx); tErr != nil {
		r.logger.Error("telemetry shutdown error", slogError(tErr))
	}
	return err
}

func (r *Runtime) startServices(ctx context.Context) error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	r.embedded = embedded

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return err
	}
	r.bus = busClient

	directory, err := devices.NewDirectory(ctx, r.cfg.Node, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("device directory: %w", err)
	}
	r.directory = directory

	svc, err := newRecognitionService(r.cfg.Recognition, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("recognition backend: %w", err)
	}
	device, err := newCaptureDevice(r.cfg.Recorder, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("capture backend: %w", err)
	}
	synth, err := newSynthesizer(r.cfg.TTS, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("tts backend: %w", err)
	}
	translator, err := newTranslator(r.cfg.Translation, r.logger)
	if err != nil {
		return fmt.Errorf("translation backend: %w", err)
	}

	r.scheduler = schedule.NewTimerScheduler()
	r.speaker = tts.NewSpeaker(ctx, r.cfg.TTS, synth, r.logger)

	session := r.cfg.Session
	orchestrator := translation.NewOrchestrator(ctx, translation.Options{
		SourceLanguage: session.SourceLanguage,
		TargetLanguage: session.TargetLanguage,
		AutoTranslate:  session.AutoTranslate,
		Debounce:       time.Duration(r.cfg.Translation.DebounceMS) * time.Millisecond,
	}, translator, r.speaker, r.scheduler, r.logger)

	coord, err := coordinator.New(ctx, coordinator.Options{
		SourceLanguage: session.SourceLanguage,
		TargetLanguage: session.TargetLanguage,
		SettleDelay:    time.Duration(r.cfg.Recognition.SettleDelayMS) * time.Millisecond,
	},
		recognition.NewManager(svc, r.logger),
		recorder.NewManager(device, time.Duration(r.cfg.Recorder.TimesliceMS)*time.Millisecond, r.logger),
		orchestrator, r.scheduler, r.logger)
	if err != nil {
		orchestrator.Close()
		return err
	}
	r.coordinator = coord

	r.bridge = coordinator.NewBridge(ctx, coordinator.BridgeOptions{
		SessionID:    uuid.NewString(),
		DeviceID:     r.cfg.Recorder.DeviceID,
		PublishClips: r.cfg.Recorder.PublishClips,
	}, busClient, coord, r.logger)
	if err := r.bridge.Start(); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	return nil
}

func (r *Runtime) stopServices() {
	if r.bridge != nil {
		r.bridge.Close()
	}
	if r.coordinator != nil {
		r.coordinator.Close()
	}
	if r.speaker != nil {
		r.speaker.Close()
	}
	if r.scheduler != nil {
		r.scheduler.Close()
	}
	if r.directory != nil {
		r.directory.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.embedded.Shutdown()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.directory.Healthy() && r.bridge.Healthy() && r.speaker.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
