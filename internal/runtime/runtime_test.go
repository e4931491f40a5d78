package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tutor/internal/config"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/ui"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeControl struct {
	mu      sync.Mutex
	state   ui.State
	actions []protocol.Action
}

func (f *fakeControl) Snapshot() ui.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeControl) Dispatch(a protocol.Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
}

func newTestMux(ctrl controlSurface, ready bool) http.Handler {
	var flag atomic.Bool
	flag.Store(ready)
	return newMux(&handlers{ctrl: ctrl, ready: &flag, log: newLogger()}, nil)
}

func TestStateEndpoint(t *testing.T) {
	ctrl := &fakeControl{state: ui.NewState()}
	ctrl.state.Status = "Done"
	rec := httptest.NewRecorder()
	newTestMux(ctrl, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st ui.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "Done" || st.SelectedLanguage != "auto" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestActionsEndpoint(t *testing.T) {
	ctrl := &fakeControl{}
	mux := newTestMux(ctrl, true)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/actions", strings.NewReader(`{"kind":"set_rate","value":"1.5"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(ctrl.actions) != 1 || ctrl.actions[0].Value != "1.5" {
		t.Fatalf("unexpected actions %+v", ctrl.actions)
	}

	for _, body := range []string{`not json`, `{"value":"x"}`} {
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/actions", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestReadiness(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestMux(&fakeControl{}, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSessionsWithoutTimeline(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestMux(&fakeControl{}, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestBuildSynthesizer(t *testing.T) {
	cfg := config.Default().Speech
	cfg.Mode = "none"
	synth, err := buildSynthesizer(context.Background(), cfg, newLogger())
	if err != nil || synth != nil {
		t.Fatalf("expected no synthesizer, got %v %v", synth, err)
	}

	cfg.Mode = "mock"
	synth, err = buildSynthesizer(context.Background(), cfg, newLogger())
	if err != nil || len(synth.Voices()) != len(cfg.Voices) {
		t.Fatalf("expected mock synthesizer with configured voices, got %v", err)
	}

	cfg.Mode = "exec"
	cfg.Command = ""
	if _, err := buildSynthesizer(context.Background(), cfg, newLogger()); err == nil {
		t.Fatal("expected error for empty speech command")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartServesUntilCancelled(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"transcribed_text":"hi","corrected_text":"Hi","explanation":"","language_code":"en"}`)
	}))
	t.Cleanup(backend.Close)

	cfg := config.Default()
	cfg.HTTP.Port = freePort(t)
	cfg.Upload.Endpoint = backend.URL
	cfg.EventStore.Path = filepath.Join(t.TempDir(), "timeline.db")
	cfg.Capture.IntervalMS = 5

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg, newLogger()).Start(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTP.Port)
	waitHTTP(t, base+"/readyz", http.StatusOK)

	post := func(kind string) {
		resp, err := http.Post(base+"/actions", "application/json", strings.NewReader(`{"kind":"`+kind+`"}`))
		if err != nil {
			t.Fatalf("post %s: %v", kind, err)
		}
		resp.Body.Close()
	}
	post(protocol.ActionRecord)
	waitStatus(t, base, "Recording...")
	post(protocol.ActionStop)
	waitStatus(t, base, "Done")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func waitHTTP(t *testing.T, url string, code int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == code {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s never returned %d", url, code)
}

func waitStatus(t *testing.T, base, status string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/state")
		if err == nil {
			var st ui.State
			_ = json.NewDecoder(resp.Body).Decode(&st)
			resp.Body.Close()
			if st.Status == status {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status never became %q", status)
}
