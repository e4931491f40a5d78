package recording

import (
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-tutor/internal/capture"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
)

// Session is one capture: the open stream and the fragments it produced so
// far, in emission order.
type Session struct {
	ID        string
	StartedAt time.Time

	stream    capture.Stream
	fragments [][]byte
	size      int
}

func newSession(stream capture.Stream) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		stream:    stream,
	}
}

// Append records a fragment. Empty fragments are ignored.
func (s *Session) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	s.fragments = append(s.fragments, fragment)
	s.size += len(fragment)
}

func (s *Session) FragmentCount() int { return len(s.fragments) }

func (s *Session) Size() int { return s.size }

// Package concatenates the fragments into a single WebM blob and clears them.
func (s *Session) Package() protocol.AudioBlob {
	data := make([]byte, 0, s.size)
	for _, f := range s.fragments {
		data = append(data, f...)
	}
	s.fragments = nil
	s.size = 0
	return protocol.AudioBlob{
		Data:     data,
		MIMEType: protocol.AudioMIMEType,
		Filename: protocol.AudioFilename,
	}
}
