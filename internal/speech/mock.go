package speech

import (
	"sync"
	"time"

	"github.com/loqalabs/loqa-tutor/internal/voice"
)

// MockSynth records utterances instead of playing them. Its voices become
// visible only after the announce delay, like a platform that loads voices
// lazily.
type MockSynth struct {
	mu       sync.Mutex
	voices   []voice.Descriptor
	visible  bool
	changed  chan struct{}
	spoken   []Utterance
	cancels  int
	failWith error
}

func NewMockSynth(voices []voice.Descriptor, announceDelay time.Duration) *MockSynth {
	m := &MockSynth{
		voices:  append([]voice.Descriptor(nil), voices...),
		changed: make(chan struct{}, 1),
	}
	if announceDelay <= 0 {
		m.visible = true
		return m
	}
	time.AfterFunc(announceDelay, func() {
		m.mu.Lock()
		m.visible = true
		m.mu.Unlock()
		select {
		case m.changed <- struct{}{}:
		default:
		}
	})
	return m
}

func (m *MockSynth) Voices() []voice.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.visible {
		return nil
	}
	return append([]voice.Descriptor(nil), m.voices...)
}

func (m *MockSynth) VoicesChanged() <-chan struct{} { return m.changed }

// FailWith makes every following Speak report err.
func (m *MockSynth) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockSynth) Speak(u Utterance, onError func(error)) {
	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	err := m.failWith
	m.mu.Unlock()
	if err != nil {
		go report(onError, err)
	}
}

func (m *MockSynth) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
}

// Spoken returns the utterances received so far.
func (m *MockSynth) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.spoken...)
}

// Cancels returns how many times Cancel was called.
func (m *MockSynth) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}
