package recording

import (
	"context"
	"log/slog"

	"github.com/loqalabs/loqa-tutor/internal/capture"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/status"
	"github.com/loqalabs/loqa-tutor/internal/ui"
)

const (
	StatusDenied     = "Microphone access denied."
	StatusRecording  = "Recording..."
	StatusProcessing = "Processing..."
)

// Packaged is a finalized recording ready for upload.
type Packaged struct {
	SessionID string
	Fragments int
	Blob      protocol.AudioBlob
	Language  string
}

// Hooks observe the capture lifecycle. OnStopped runs once per session when
// it leaves the recording state, before its fragments are finalized.
// OnPackaged receives every finalized recording and is responsible for
// uploading it.
type Hooks struct {
	OnStarted  func(*Session)
	OnStopped  func(*Session)
	OnDenied   func(error)
	OnPackaged func(Packaged)
}

// Controller owns the capture lifecycle. Every method must run on the
// controller loop; post schedules a closure onto that loop from any goroutine.
type Controller struct {
	mic    capture.Microphone
	state  *ui.State
	status *status.Presenter
	post   func(func())
	hooks  Hooks
	log    *slog.Logger

	active  *Session
	pending map[*Session]struct{}
	opening bool
}

func NewController(mic capture.Microphone, state *ui.State, presenter *status.Presenter, post func(func()), hooks Hooks, log *slog.Logger) *Controller {
	return &Controller{
		mic:     mic,
		state:   state,
		status:  presenter,
		post:    post,
		hooks:   hooks,
		log:     log.With(slog.String("component", "recording")),
		pending: make(map[*Session]struct{}),
	}
}

// Active returns the session currently capturing, if any.
func (c *Controller) Active() *Session {
	return c.active
}

// Start requests the microphone. It returns immediately; the outcome is
// applied when the permission request completes.
func (c *Controller) Start(ctx context.Context) {
	if c.opening || c.active != nil || !c.state.Controls.RecordEnabled {
		return
	}
	c.state.BannerVisible = false
	c.opening = true
	go func() {
		stream, err := c.mic.Open(ctx)
		c.post(func() { c.opened(stream, err) })
	}()
}

func (c *Controller) opened(stream capture.Stream, err error) {
	c.opening = false
	if err != nil {
		c.log.Warn("microphone unavailable", slogError(err))
		c.status.Update(StatusDenied, ui.SeverityError)
		if c.hooks.OnDenied != nil {
			c.hooks.OnDenied(err)
		}
		return
	}

	s := newSession(stream)
	c.active = s
	c.pending[s] = struct{}{}
	go func() {
		for fragment := range stream.Fragments() {
			f := fragment
			c.post(func() { s.Append(f) })
		}
		c.post(func() { c.finalized(s) })
	}()

	c.status.Update(StatusRecording, ui.SeverityDefault)
	c.state.Controls.RecordEnabled = false
	c.state.Controls.StopEnabled = true
	c.log.Info("recording started", slog.String("session_id", s.ID))
	if c.hooks.OnStarted != nil {
		c.hooks.OnStarted(s)
	}
}

// Stop asks the active capture to finalize. Packaging happens once the
// stream reports that every fragment has been delivered.
func (c *Controller) Stop() {
	s := c.active
	if s == nil || !c.state.Controls.StopEnabled {
		return
	}
	if err := s.stream.Stop(); err != nil {
		c.log.Warn("failed to stop capture", slogError(err), slog.String("session_id", s.ID))
	}
	c.stopped(s)
}

func (c *Controller) stopped(s *Session) {
	c.active = nil
	c.status.Update(StatusProcessing, ui.SeverityDefault)
	c.state.SpinnerVisible = true
	c.state.Controls.RecordEnabled = true
	c.state.Controls.StopEnabled = false
	if c.hooks.OnStopped != nil {
		c.hooks.OnStopped(s)
	}
}

func (c *Controller) finalized(s *Session) {
	if c.active == s {
		// The capture ended on its own; treat it as a stop.
		c.stopped(s)
	}
	delete(c.pending, s)
	c.release(s)

	fragments := s.FragmentCount()
	blob := s.Package()
	c.log.Info("recording finalized",
		slog.String("session_id", s.ID),
		slog.Int("fragments", fragments),
		slog.Int("bytes", len(blob.Data)))

	if c.hooks.OnPackaged != nil {
		c.hooks.OnPackaged(Packaged{
			SessionID: s.ID,
			Fragments: fragments,
			Blob:      blob,
			Language:  c.state.SelectedLanguage,
		})
	}
}

// Close releases every stream that has not finalized yet. Their recordings
// are discarded.
func (c *Controller) Close() {
	for s := range c.pending {
		c.release(s)
		delete(c.pending, s)
	}
	c.active = nil
}

func (c *Controller) release(s *Session) {
	if err := s.stream.Release(); err != nil {
		c.log.Warn("failed to release microphone", slogError(err), slog.String("session_id", s.ID))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
