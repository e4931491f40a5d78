package speech

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tutor/internal/voice"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestNewExecSynthEmptyCommand(t *testing.T) {
	if _, err := NewExecSynth(context.Background(), "", "", nil, newLogger()); err == nil {
		t.Fatal("expected error")
	}
}

func TestExecSynthStaticVoices(t *testing.T) {
	static := []voice.Descriptor{{Name: "a", Lang: "en-US"}}
	s, err := NewExecSynth(context.Background(), "true", "", static, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := s.Voices(); len(got) != 1 || got[0].Lang != "en-US" {
		t.Fatalf("unexpected voices %+v", got)
	}
}

func TestExecSynthVoicesCommandAnnounces(t *testing.T) {
	requireSh(t)
	cmd := `sh -c 'echo "[{\"name\":\"Anna\",\"lang\":\"de-DE\"}]"'`
	s, err := NewExecSynth(context.Background(), "true", cmd, nil, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	select {
	case <-s.VoicesChanged():
	case <-time.After(5 * time.Second):
		t.Fatal("voices never announced")
	}
	got := s.Voices()
	if len(got) != 1 || got[0].Name != "Anna" || got[0].Lang != "de-DE" {
		t.Fatalf("unexpected voices %+v", got)
	}
}

func TestExecSynthWritesRequest(t *testing.T) {
	requireSh(t)
	out := filepath.Join(t.TempDir(), "req.json")
	s, err := NewExecSynth(context.Background(), `sh -c 'cat > "$0"' `+out, "", nil, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	errs := make(chan error, 1)
	s.Speak(Utterance{Text: "Hello", Voice: &voice.Descriptor{Name: "Samantha", Lang: "en-US"}, Rate: 1.5, Pitch: 1}, func(err error) { errs <- err })

	deadline := time.After(5 * time.Second)
	for {
		data, _ := os.ReadFile(out)
		if strings.Contains(string(data), "}") {
			body := string(data)
			for _, want := range []string{`"text":"Hello"`, `"voice":"Samantha"`, `"lang":"en-US"`, `"rate":1.5`, `"pitch":1`} {
				if !strings.Contains(body, want) {
					t.Fatalf("request %s missing %s", body, want)
				}
			}
			return
		}
		select {
		case err := <-errs:
			t.Fatalf("speak failed: %v", err)
		case <-deadline:
			t.Fatal("request never written")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestExecSynthReportsFailure(t *testing.T) {
	requireSh(t)
	s, err := NewExecSynth(context.Background(), `sh -c 'exit 3'`, "", nil, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	errs := make(chan error, 1)
	s.Speak(Utterance{Text: "x", Rate: 1, Pitch: 1}, func(err error) { errs <- err })
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("failure never reported")
	}
}

func TestExecSynthCancelIsSilent(t *testing.T) {
	requireSh(t)
	s, err := NewExecSynth(context.Background(), `sleep 5`, "", nil, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	errs := make(chan error, 1)
	s.Speak(Utterance{Text: "x", Rate: 1, Pitch: 1}, func(err error) { errs <- err })
	time.Sleep(20 * time.Millisecond)
	s.Cancel()
	select {
	case err := <-errs:
		t.Fatalf("cancelled playback reported error: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMockSynthAnnouncesLater(t *testing.T) {
	m := NewMockSynth([]voice.Descriptor{{Name: "a", Lang: "en"}}, 10*time.Millisecond)
	if len(m.Voices()) != 0 {
		t.Fatal("expected no voices before announce")
	}
	select {
	case <-m.VoicesChanged():
	case <-time.After(2 * time.Second):
		t.Fatal("never announced")
	}
	if len(m.Voices()) != 1 {
		t.Fatal("expected voices after announce")
	}
}
