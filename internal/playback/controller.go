package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-tutor/internal/speech"
	"github.com/loqalabs/loqa-tutor/internal/ui"
	"github.com/loqalabs/loqa-tutor/internal/voice"
)

// ErrUnsupported reports that no speech synthesis capability is available.
var ErrUnsupported = errors.New("speech synthesis unsupported")

// UnsupportedMessage is the alert shown when Play has nothing to speak with.
const UnsupportedMessage = "Sorry, your platform does not support text to speech!"

const pitch = 1.0

// RateLimits bounds the speech rate the user can select.
type RateLimits struct {
	Min     float64
	Max     float64
	Default float64
}

// DefaultRateLimits returns the 0.5..2 range with a default of 1.
func DefaultRateLimits() RateLimits {
	return RateLimits{Min: 0.5, Max: 2, Default: 1}
}

// Controller speaks rendered text through the platform synthesizer. It must
// run on the controller loop.
type Controller struct {
	synth  speech.Synthesizer
	voices *voice.Catalog
	state  *ui.State
	limits RateLimits
	log    *slog.Logger
}

// New returns a controller. synth may be nil when the platform has no speech
// support; Play then returns ErrUnsupported.
func New(synth speech.Synthesizer, voices *voice.Catalog, state *ui.State, limits RateLimits, log *slog.Logger) *Controller {
	if limits.Min <= 0 || limits.Max < limits.Min {
		limits = DefaultRateLimits()
	}
	if limits.Default < limits.Min || limits.Default > limits.Max {
		limits.Default = clamp(1, limits.Min, limits.Max)
	}
	c := &Controller{
		synth:  synth,
		voices: voices,
		state:  state,
		limits: limits,
		log:    log.With(slog.String("component", "playback")),
	}
	c.setRate(limits.Default)
	return c
}

// Play cancels any speech in progress and speaks text with the selected
// voice and rate.
func (c *Controller) Play(text string) error {
	if c.synth == nil {
		return ErrUnsupported
	}
	c.synth.Cancel()

	u := speech.Utterance{Text: text, Rate: c.state.Rate, Pitch: pitch}
	if c.voices != nil {
		if v, ok := c.voices.Selected(); ok {
			u.Voice = &v
		}
	}
	attrs := []any{slog.Float64("rate", u.Rate), slog.Int("chars", len(text))}
	if u.Voice != nil {
		attrs = append(attrs, slog.String("voice", u.Voice.Name))
	}
	c.log.Debug("speaking", attrs...)

	c.synth.Speak(u, func(err error) {
		c.log.Error("speech synthesis failed", slog.String("error", err.Error()))
	})
	return nil
}

// SetRate applies a rate chosen by the user. Values outside the limits are
// clamped.
func (c *Controller) SetRate(value string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("parse rate %q: %w", value, err)
	}
	c.setRate(clamp(v, c.limits.Min, c.limits.Max))
	return nil
}

// Limits returns the configured rate bounds.
func (c *Controller) Limits() RateLimits {
	return c.limits
}

func (c *Controller) setRate(v float64) {
	c.state.Rate = v
	c.state.RateLabel = strconv.FormatFloat(v, 'f', -1, 64)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
