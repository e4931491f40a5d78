package speech

import "github.com/loqalabs/loqa-tutor/internal/voice"

// Utterance is a single playback request.
type Utterance struct {
	Text  string
	Voice *voice.Descriptor
	Rate  float64
	Pitch float64
}

// Synthesizer is the platform speech capability. Voices may be empty until
// the platform has loaded them; VoicesChanged fires when the list changes.
type Synthesizer interface {
	voice.Source
	VoicesChanged() <-chan struct{}
	// Speak begins playback and returns without waiting for it to finish.
	// onError is called from another goroutine if playback fails; it is not
	// called for playback that was cancelled.
	Speak(u Utterance, onError func(error))
	// Cancel stops any utterance in progress.
	Cancel()
}
