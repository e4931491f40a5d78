package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-tutor/internal/bus"
	"github.com/loqalabs/loqa-tutor/internal/busview"
	"github.com/loqalabs/loqa-tutor/internal/capture"
	"github.com/loqalabs/loqa-tutor/internal/config"
	"github.com/loqalabs/loqa-tutor/internal/eventstore"
	"github.com/loqalabs/loqa-tutor/internal/natsserver"
	"github.com/loqalabs/loqa-tutor/internal/playback"
	"github.com/loqalabs/loqa-tutor/internal/speech"
	"github.com/loqalabs/loqa-tutor/internal/tutor"
	"github.com/loqalabs/loqa-tutor/internal/ui"
	"github.com/loqalabs/loqa-tutor/internal/upload"
	"github.com/loqalabs/loqa-tutor/internal/voice"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup

	closers []func(context.Context) error
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires the tutor and serves until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	err := r.run(ctx)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return errors.Join(err, r.shutdown(shutdownCtx))
}

func (r *Runtime) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.onShutdown(shutdownTelemetry)

	timeline, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open session timeline: %w", err)
	}
	r.onShutdown(func(context.Context) error { return timeline.Close() })

	mic, err := buildMicrophone(r.cfg.Capture)
	if err != nil {
		return err
	}
	synth, err := buildSynthesizer(ctx, r.cfg.Speech, r.logger)
	if err != nil {
		return err
	}

	views := []ui.View{ui.NewLogView(r.logger)}
	bv, err := r.connectBus(ctx)
	if err != nil {
		return err
	}
	if bv != nil {
		views = append(views, bv)
	}

	ctrl, err := tutor.New(tutor.Deps{
		Microphone: mic,
		Uploader:   upload.New(r.cfg.Upload.Endpoint, time.Duration(r.cfg.Upload.TimeoutMS)*time.Millisecond, r.logger),
		Synth:      synth,
		View:       ui.NewMultiView(views...),
		Timeline:   timeline,
		VoicePolicy: voice.RetryPolicy{
			Interval:    time.Duration(r.cfg.Voices.PollIntervalMS) * time.Millisecond,
			MaxAttempts: r.cfg.Voices.MaxAttempts,
		},
		RateLimits: playback.RateLimits{
			Min:     r.cfg.Speech.MinRate,
			Max:     r.cfg.Speech.MaxRate,
			Default: r.cfg.Speech.DefaultRate,
		},
		DefaultLanguage: r.cfg.Language.Default,
		Logger:          r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create tutor controller: %w", err)
	}
	if bv != nil {
		if err := bv.Listen(ctrl.Dispatch); err != nil {
			return err
		}
		r.onShutdown(func(context.Context) error { return bv.Close() })
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- ctrl.Run(ctx) }()

	h := &handlers{ctrl: ctrl, timeline: timeline, ready: &r.ready, log: r.logger.With(slog.String("component", "http"))}
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           newMux(h, metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("backend", r.cfg.Upload.Endpoint))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	cancel()
	return errors.Join(runErr, <-loopDone)
}

func (r *Runtime) connectBus(ctx context.Context) (*busview.View, error) {
	cfg := r.cfg.Bus
	if !cfg.Enabled {
		return nil, nil
	}
	embedded, err := natsserver.Start(cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	if embedded != nil {
		r.onShutdown(func(context.Context) error { embedded.Shutdown(); return nil })
		cfg.Servers = []string{embedded.URL()}
	}

	client, err := bus.Connect(ctx, r.cfg.RuntimeName, cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.onShutdown(func(context.Context) error { client.Close(); return nil })
	return busview.New(client, r.logger), nil
}

func (r *Runtime) onShutdown(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// shutdown runs the registered closers in reverse order.
func (r *Runtime) shutdown(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func buildMicrophone(cfg config.CaptureConfig) (capture.Microphone, error) {
	switch cfg.Mode {
	case "exec":
		mic, err := capture.NewExecMicrophone(cfg.Command, cfg.FragmentBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to configure capture command: %w", err)
		}
		return mic, nil
	default:
		return capture.NewMockMicrophone(time.Duration(cfg.IntervalMS)*time.Millisecond, cfg.Deny), nil
	}
}

func buildSynthesizer(ctx context.Context, cfg config.SpeechConfig, logger *slog.Logger) (speech.Synthesizer, error) {
	static := make([]voice.Descriptor, 0, len(cfg.Voices))
	for _, v := range cfg.Voices {
		static = append(static, voice.Descriptor{Name: v.Name, Lang: v.Lang})
	}
	switch cfg.Mode {
	case "none":
		return nil, nil
	case "exec":
		synth, err := speech.NewExecSynth(ctx, cfg.Command, cfg.VoicesCommand, static, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure speech command: %w", err)
		}
		return synth, nil
	default:
		return speech.NewMockSynth(static, time.Duration(cfg.AnnounceDelayMS)*time.Millisecond), nil
	}
}
