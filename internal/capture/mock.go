package capture

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type mockMicrophone struct {
	interval time.Duration
	deny     bool
}

// NewMockMicrophone returns a microphone that emits numbered text fragments
// every interval until stopped. With deny set every Open fails.
func NewMockMicrophone(interval time.Duration, deny bool) Microphone {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &mockMicrophone{interval: interval, deny: deny}
}

func (m *mockMicrophone) Open(ctx context.Context) (Stream, error) {
	if m.deny {
		return nil, ErrPermissionDenied
	}
	s := &mockStream{
		fragments: make(chan []byte, 1),
		stop:      make(chan struct{}),
	}
	go s.run(ctx, m.interval)
	return s, nil
}

type mockStream struct {
	fragments chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
}

func (s *mockStream) run(ctx context.Context, interval time.Duration) {
	defer close(s.fragments)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for seq := 0; ; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			// Flush a trailing fragment the way a recorder does on stop.
			s.fragments <- []byte(fmt.Sprintf("mock-fragment-%d;", seq))
			return
		case <-ticker.C:
			s.fragments <- []byte(fmt.Sprintf("mock-fragment-%d;", seq))
		}
	}
}

func (s *mockStream) Fragments() <-chan []byte { return s.fragments }

func (s *mockStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *mockStream) Release() error {
	return s.Stop()
}
