package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-tutor/internal/voice"
)

type execSynth struct {
	ctx       context.Context
	cmd       []string
	voicesCmd []string
	log       *slog.Logger

	mu      sync.Mutex
	voices  []voice.Descriptor
	changed chan struct{}
	cancel  context.CancelFunc
}

type execRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Lang  string  `json:"lang,omitempty"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// NewExecSynth speaks by running command once per utterance, writing a JSON
// request to its stdin. When voicesCommand is set it is run in the
// background and must print a JSON array of {name, lang}; otherwise the
// static voices are used.
func NewExecSynth(ctx context.Context, command, voicesCommand string, static []voice.Descriptor, log *slog.Logger) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	s := &execSynth{
		ctx:     ctx,
		cmd:     args,
		log:     log.With(slog.String("component", "speech-exec")),
		changed: make(chan struct{}, 1),
	}
	if strings.TrimSpace(voicesCommand) == "" {
		s.voices = append([]voice.Descriptor(nil), static...)
		return s, nil
	}
	vargs, err := shellwords.NewParser().Parse(voicesCommand)
	if err != nil {
		return nil, fmt.Errorf("parse voices command: %w", err)
	}
	if len(vargs) == 0 {
		return nil, fmt.Errorf("voices command empty")
	}
	s.voicesCmd = vargs
	go s.loadVoices()
	return s, nil
}

func (s *execSynth) loadVoices() {
	cmd := exec.CommandContext(s.ctx, s.voicesCmd[0], s.voicesCmd[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		s.log.Warn("voices command failed", slogError(err), slog.String("stderr", strings.TrimSpace(stderr.String())))
		return
	}
	var voices []voice.Descriptor
	if err := json.Unmarshal(out, &voices); err != nil {
		s.log.Warn("failed to decode voices", slogError(err))
		return
	}
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *execSynth) Voices() []voice.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]voice.Descriptor(nil), s.voices...)
}

func (s *execSynth) VoicesChanged() <-chan struct{} { return s.changed }

func (s *execSynth) Speak(u Utterance, onError func(error)) {
	req := execRequest{Text: u.Text, Rate: u.Rate, Pitch: u.Pitch}
	if u.Voice != nil {
		req.Voice = u.Voice.Name
		req.Lang = u.Voice.Lang
	}
	payload, err := json.Marshal(req)
	if err != nil {
		report(onError, err)
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		cmd := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
		cmd.Stdin = bytes.NewReader(payload)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return
			}
			report(onError, fmt.Errorf("speech command failed: %w: %s", err, strings.TrimSpace(stderr.String())))
		}
	}()
}

func (s *execSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func report(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
