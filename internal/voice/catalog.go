package voice

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/loqa-tutor/internal/ui"
)

// Descriptor is a platform voice snapshot.
type Descriptor struct {
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// Source is the platform voice enumeration. It may return an empty list
// until the platform has finished loading its voices.
type Source interface {
	Voices() []Descriptor
}

// RetryPolicy bounds polling for an initially empty voice list.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Catalog tracks the platform voices and the selected voice in the shared UI
// state. It is not safe for concurrent use; the controller loop owns it.
type Catalog struct {
	src    Source
	state  *ui.State
	policy RetryPolicy
	log    *slog.Logger

	voices   []Descriptor
	attempts int
	timer    *time.Timer
	settled  bool
}

func NewCatalog(src Source, state *ui.State, policy RetryPolicy, log *slog.Logger) *Catalog {
	if policy.Interval <= 0 {
		policy.Interval = 100 * time.Millisecond
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 50
	}
	return &Catalog{
		src:    src,
		state:  state,
		policy: policy,
		log:    log.With(slog.String("component", "voice-catalog")),
	}
}

// List returns the current voice snapshot.
func (c *Catalog) List() []Descriptor {
	return append([]Descriptor(nil), c.voices...)
}

// Load reads the platform voices. When the list is still empty it arms a
// single retry that calls retry after the policy interval; retry must re-enter
// Load on the goroutine that owns the catalog. Polling stops at the first
// non-empty list, after Changed, or once the attempts are used up.
func (c *Catalog) Load(retry func()) bool {
	if c.refresh() {
		c.stopPolling()
		return true
	}
	if c.settled {
		return false
	}
	if c.attempts >= c.policy.MaxAttempts {
		c.log.Warn("voice list still empty, giving up", slog.Int("attempts", c.attempts))
		c.stopPolling()
		return false
	}
	c.attempts++
	c.timer = time.AfterFunc(c.policy.Interval, retry)
	return false
}

// Changed handles the platform's voice-list change notification. It
// supersedes any pending poll.
func (c *Catalog) Changed() bool {
	c.stopPolling()
	return c.refresh()
}

// Polling reports whether a retry is still armed.
func (c *Catalog) Polling() bool {
	return !c.settled && c.timer != nil
}

// Attempts returns how many retries have been armed.
func (c *Catalog) Attempts() int {
	return c.attempts
}

// Close stops any pending retry.
func (c *Catalog) Close() {
	c.stopPolling()
}

func (c *Catalog) stopPolling() {
	c.settled = true
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Catalog) refresh() bool {
	var voices []Descriptor
	if c.src != nil {
		voices = c.src.Voices()
	}
	c.voices = append([]Descriptor(nil), voices...)
	if len(c.voices) == 0 {
		c.state.Voices = nil
		c.state.SelectedVoice = -1
		return false
	}
	options := make([]ui.Option, 0, len(c.voices))
	for i, v := range c.voices {
		options = append(options, ui.Option{
			Value: strconv.Itoa(i),
			Label: fmt.Sprintf("%s (%s)", v.Name, v.Lang),
		})
	}
	c.state.Voices = options
	c.SelectForLanguage(c.state.DetectedLanguage)
	return true
}

// SelectForLanguage selects the first voice whose language tag starts with
// code, falling back to the first voice. It returns the selected index, or -1
// when no voices are known.
func (c *Catalog) SelectForLanguage(code string) int {
	idx := -1
	for i, v := range c.voices {
		if strings.HasPrefix(v.Lang, code) {
			idx = i
			break
		}
	}
	if idx < 0 && len(c.voices) > 0 {
		idx = 0
	}
	c.state.SelectedVoice = idx
	return idx
}

// Select applies a user choice from the voice dropdown.
func (c *Catalog) Select(index int) error {
	if index < 0 || index >= len(c.voices) {
		return fmt.Errorf("voice index %d out of range (have %d)", index, len(c.voices))
	}
	c.state.SelectedVoice = index
	return nil
}

// Selected returns the currently selected voice, if any.
func (c *Catalog) Selected() (Descriptor, bool) {
	idx := c.state.SelectedVoice
	if len(c.voices) == 0 || idx < 0 || idx >= len(c.voices) {
		return Descriptor{}, false
	}
	return c.voices[idx], true
}
