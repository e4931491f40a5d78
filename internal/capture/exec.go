package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

const defaultFragmentBytes = 16 * 1024

type execMicrophone struct {
	cmd           []string
	fragmentBytes int
}

// NewExecMicrophone runs command for every capture. The command must write
// the encoded recording to stdout and finalize its container on SIGINT, e.g.
//
//	ffmpeg -loglevel error -f pulse -i default -c:a libopus -f webm pipe:1
func NewExecMicrophone(command string, fragmentBytes int) (Microphone, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command empty")
	}
	if fragmentBytes <= 0 {
		fragmentBytes = defaultFragmentBytes
	}
	return &execMicrophone{cmd: args, fragmentBytes: fragmentBytes}, nil
}

func (m *execMicrophone) Open(ctx context.Context) (Stream, error) {
	base := m.cmd[0]
	args := append([]string{}, m.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start capture command: %v", ErrPermissionDenied, err)
	}

	// The device is only considered granted once audio starts flowing.
	first := make([]byte, m.fragmentBytes)
	n, readErr := stdout.Read(first)
	if n == 0 {
		waitErr := cmd.Wait()
		detail := strings.TrimSpace(stderr.String())
		return nil, fmt.Errorf("%w: capture produced no audio: %v %v: %s", ErrPermissionDenied, readErr, waitErr, detail)
	}

	s := &execStream{
		cmd:       cmd,
		stdout:    stdout,
		fragments: make(chan []byte, 16),
		done:      make(chan struct{}),
		size:      m.fragmentBytes,
	}
	go s.pump(first[:n])
	return s, nil
}

type execStream struct {
	cmd       *exec.Cmd
	stdout    io.Reader
	fragments chan []byte
	done      chan struct{}
	size      int

	stopOnce    sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

func (s *execStream) Fragments() <-chan []byte { return s.fragments }

func (s *execStream) pump(first []byte) {
	defer close(s.done)
	defer close(s.fragments)
	s.fragments <- first
	for {
		buf := make([]byte, s.size)
		n, err := s.stdout.Read(buf)
		if n > 0 {
			s.fragments <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}

func (s *execStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.cmd.Process == nil {
			return
		}
		if sigErr := s.cmd.Process.Signal(os.Interrupt); sigErr != nil {
			err = s.cmd.Process.Kill()
		}
	})
	return err
}

func (s *execStream) Release() error {
	s.releaseOnce.Do(func() {
		select {
		case <-s.done:
		default:
			// Released before finalize: drop the capture.
			_ = s.cmd.Process.Kill()
			for range s.fragments {
			}
		}
		waited := make(chan error, 1)
		go func() { waited <- s.cmd.Wait() }()
		select {
		case err := <-waited:
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				s.releaseErr = err
			}
		case <-time.After(5 * time.Second):
			_ = s.cmd.Process.Kill()
			s.releaseErr = fmt.Errorf("capture command did not exit, killed")
		}
	})
	return s.releaseErr
}
