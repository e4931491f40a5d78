package tutor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-tutor/internal/capture"
	"github.com/loqalabs/loqa-tutor/internal/eventstore"
	"github.com/loqalabs/loqa-tutor/internal/language"
	"github.com/loqalabs/loqa-tutor/internal/playback"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/recording"
	"github.com/loqalabs/loqa-tutor/internal/render"
	"github.com/loqalabs/loqa-tutor/internal/speech"
	"github.com/loqalabs/loqa-tutor/internal/status"
	"github.com/loqalabs/loqa-tutor/internal/ui"
	"github.com/loqalabs/loqa-tutor/internal/voice"
)

const (
	StatusError = "An error occurred."
	StatusDone  = "Done"
)

// Uploader sends a packaged recording to the transcription backend.
type Uploader interface {
	Send(ctx context.Context, blob protocol.AudioBlob, language string) (protocol.TranscriptionResult, error)
}

// Deps are the capabilities the controller drives. Synth may be nil when the
// platform has no speech support; Timeline may be nil.
type Deps struct {
	Microphone      capture.Microphone
	Uploader        Uploader
	Synth           speech.Synthesizer
	View            ui.View
	Timeline        *eventstore.Timeline
	VoicePolicy     voice.RetryPolicy
	RateLimits      playback.RateLimits
	DefaultLanguage string
	Logger          *slog.Logger
}

// Controller is the single event loop that owns the UI state. Every state
// change happens on the loop goroutine started by Run; other goroutines
// hand work to it through Dispatch and Post.
type Controller struct {
	state    ui.State
	events   chan func()
	done     chan struct{}
	snapshot atomic.Pointer[ui.State]

	ctx       context.Context
	status    *status.Presenter
	recorder  *recording.Controller
	uploader  Uploader
	renderer  *render.Renderer
	voices    *voice.Catalog
	player    *playback.Controller
	synth     speech.Synthesizer
	view      ui.View
	timeline  *eventstore.Timeline
	metrics   *metrics
	log       *slog.Logger

	lastSession string

	// processing counts recordings between stop and their upload outcome.
	processing int
}

func New(deps Deps) (*Controller, error) {
	if deps.Microphone == nil {
		return nil, errors.New("microphone required")
	}
	if deps.Uploader == nil {
		return nil, errors.New("uploader required")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "tutor"))
	view := deps.View
	if view == nil {
		view = ui.NewLogView(log)
	}

	c := &Controller{
		state:    ui.NewState(),
		events:   make(chan func(), 256),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		uploader: deps.Uploader,
		view:     view,
		timeline: deps.Timeline,
		metrics:  newMetrics(log),
		log:      log,
	}
	st := &c.state
	st.Languages = language.Options()
	if lang := deps.DefaultLanguage; lang != "" {
		if language.Valid(lang) {
			st.SelectedLanguage = lang
		} else {
			log.Warn("unknown default language, using auto", slog.String("language", lang))
		}
	}

	c.status = status.New(st)
	c.renderer = render.New(st)
	c.synth = deps.Synth
	c.voices = voice.NewCatalog(deps.Synth, st, deps.VoicePolicy, log)
	c.player = playback.New(c.synth, c.voices, st, deps.RateLimits, log)
	c.recorder = recording.NewController(deps.Microphone, st, c.status, c.Post, recording.Hooks{
		OnStarted:  c.recordingStarted,
		OnStopped:  c.recordingStopped,
		OnDenied:   c.recordingDenied,
		OnPackaged: c.upload,
	}, log)

	c.publish()
	return c, nil
}

// Run drives the loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	defer c.shutdown()

	var changed <-chan struct{}
	if c.synth != nil {
		changed = c.synth.VoicesChanged()
	}
	c.loadVoices()
	c.publish()
	c.log.Info("tutor controller started")

	for {
		select {
		case fn := <-c.events:
			fn()
		case <-changed:
			if c.voices.Changed() {
				c.log.Debug("voice list changed", slog.Int("voices", len(c.voices.List())))
			}
		case <-ctx.Done():
			c.log.Info("tutor controller stopping")
			return nil
		}
		c.publish()
	}
}

func (c *Controller) loadVoices() {
	if c.voices.Load(func() { c.Post(c.loadVoices) }) {
		c.log.Debug("voices loaded", slog.Int("voices", len(c.voices.List())))
	}
}

func (c *Controller) shutdown() {
	c.voices.Close()
	if c.synth != nil {
		c.synth.Cancel()
	}
	c.recorder.Close()
}

// Post schedules fn on the loop. It is safe from any goroutine and drops fn
// once the loop has exited.
func (c *Controller) Post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// Dispatch applies a user action on the loop.
func (c *Controller) Dispatch(action protocol.Action) {
	c.Post(func() { c.handle(action) })
}

// Snapshot returns the most recently published state. It is safe from any
// goroutine.
func (c *Controller) Snapshot() ui.State {
	if st := c.snapshot.Load(); st != nil {
		return *st
	}
	return ui.NewState()
}

func (c *Controller) publish() {
	st := c.state
	c.snapshot.Store(&st)
	c.view.Render(st)
}

func (c *Controller) handle(action protocol.Action) {
	switch action.Kind {
	case protocol.ActionRecord:
		c.recorder.Start(c.ctx)
	case protocol.ActionStop:
		c.recorder.Stop()
	case protocol.ActionPlay:
		c.play()
	case protocol.ActionSelectLanguage:
		code := action.Value
		if !language.Valid(code) {
			c.log.Warn("unknown language selected, using auto", slog.String("language", code))
			code = language.Auto
		}
		c.state.SelectedLanguage = code
	case protocol.ActionSelectVoice:
		idx, err := strconv.Atoi(action.Value)
		if err == nil {
			err = c.voices.Select(idx)
		}
		if err != nil {
			c.log.Warn("invalid voice selection", slog.String("value", action.Value), slogError(err))
		}
	case protocol.ActionSetRate:
		if err := c.player.SetRate(action.Value); err != nil {
			c.log.Warn("invalid rate", slog.String("value", action.Value), slogError(err))
		}
	default:
		c.log.Warn("unknown action", slog.String("kind", action.Kind))
	}
}

func (c *Controller) play() {
	if !c.state.Controls.PlayEnabled {
		return
	}
	text := render.PlainText(c.state.CorrectedHTML)
	if err := c.player.Play(text); err != nil {
		if errors.Is(err, playback.ErrUnsupported) {
			c.metrics.playback(c.ctx, "unsupported")
			c.view.Alert(playback.UnsupportedMessage)
			return
		}
		c.metrics.playback(c.ctx, "error")
		c.log.Error("playback failed", slogError(err))
		return
	}
	c.metrics.playback(c.ctx, "started")
	if c.lastSession != "" {
		c.record(eventstore.Entry{SessionID: c.lastSession, Kind: eventstore.KindPlayed})
	}
}

func (c *Controller) recordingStarted(s *recording.Session) {
	c.metrics.recording(c.ctx, "started")
	c.record(eventstore.Entry{SessionID: s.ID, Kind: eventstore.KindStarted, Language: c.state.SelectedLanguage})
}

func (c *Controller) recordingStopped(*recording.Session) {
	c.processing++
}

func (c *Controller) recordingDenied(err error) {
	c.metrics.recording(c.ctx, "denied")
	c.record(eventstore.Entry{SessionID: uuid.NewString(), Kind: eventstore.KindDenied, Detail: err.Error()})
}

func (c *Controller) upload(p recording.Packaged) {
	c.record(eventstore.Entry{
		SessionID: p.SessionID,
		Kind:      eventstore.KindPackaged,
		Language:  p.Language,
		Fragments: p.Fragments,
		Bytes:     len(p.Blob.Data),
	})
	started := time.Now()
	ctx := c.ctx
	go func() {
		res, err := c.uploader.Send(ctx, p.Blob, p.Language)
		took := time.Since(started)
		c.Post(func() { c.uploaded(p.SessionID, res, err, took) })
	}()
}

func (c *Controller) uploaded(sessionID string, res protocol.TranscriptionResult, err error, took time.Duration) {
	if c.processing > 0 {
		c.processing--
	}
	c.state.SpinnerVisible = c.processing > 0
	if err == nil {
		err = c.renderer.Render(res)
	}
	if err != nil {
		c.log.Error("processing failed", slog.String("session_id", sessionID), slogError(err))
		c.metrics.upload(c.ctx, "error", took)
		c.record(eventstore.Entry{SessionID: sessionID, Kind: eventstore.KindUploadFailed, Detail: err.Error()})
		c.status.Update(StatusError, ui.SeverityError)
		c.state.BannerVisible = true
		return
	}

	c.log.Info("recording processed",
		slog.String("session_id", sessionID),
		slog.String("language", c.state.DetectedLanguage),
		slog.Duration("took", took))
	c.metrics.upload(c.ctx, "success", took)
	c.record(eventstore.Entry{SessionID: sessionID, Kind: eventstore.KindUploaded, Language: c.state.DetectedLanguage})
	c.lastSession = sessionID
	c.status.Update(StatusDone, ui.SeveritySuccess)
	c.voices.SelectForLanguage(c.state.DetectedLanguage)
}

func (c *Controller) record(e eventstore.Entry) {
	if c.timeline == nil {
		return
	}
	if err := c.timeline.Record(context.WithoutCancel(c.ctx), e); err != nil {
		c.log.Warn("failed to record timeline entry", slog.String("kind", string(e.Kind)), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
