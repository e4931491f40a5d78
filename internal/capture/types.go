package capture

import (
	"context"
	"errors"
)

// ErrPermissionDenied reports that the microphone could not be opened.
var ErrPermissionDenied = errors.New("microphone access denied")

// Stream is an open audio input. Fragments are delivered on Fragments in the
// order they were produced; the channel is closed once capture has finalized,
// after which every fragment has been delivered.
type Stream interface {
	Fragments() <-chan []byte
	// Stop asks the capture to finalize. It does not wait.
	Stop() error
	// Release frees the input device. It is safe to call more than once.
	Release() error
}

// Microphone grants access to an audio input. Open may block while the
// platform asks for permission.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}
