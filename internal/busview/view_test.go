package busview

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tutor/internal/bus"
	"github.com/loqalabs/loqa-tutor/internal/config"
	"github.com/loqalabs/loqa-tutor/internal/natsserver"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/ui"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startBus(t *testing.T) (*bus.Client, *bus.Client) {
	t.Helper()
	cfg := config.BusConfig{Enabled: true, Embedded: true, Port: -1, ConnectTimeout: 2000}
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.URL()}
	ctx := context.Background()
	a, err := bus.Connect(ctx, "busview-test", cfg, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(a.Close)
	b, err := bus.Connect(ctx, "busview-remote", cfg, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(b.Close)
	return a, b
}

func flush(t *testing.T, c *bus.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestActionsAreDispatched(t *testing.T) {
	local, remote := startBus(t)
	got := make(chan protocol.Action, 4)
	v := New(local, newLogger())
	if err := v.Listen(func(a protocol.Action) { got <- a }); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	flush(t, local)

	if err := remote.PublishJSON(protocol.SubjectUIAction, map[string]string{"value": "no kind"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := remote.PublishJSON(protocol.SubjectUIAction, protocol.Action{Kind: protocol.ActionRecord}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := remote.PublishJSON(protocol.SubjectUIAction, protocol.Action{Kind: protocol.ActionSetRate, Value: "1.5"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	flush(t, remote)

	for _, want := range []string{protocol.ActionRecord, protocol.ActionSetRate} {
		select {
		case a := <-got:
			if a.Kind != want {
				t.Fatalf("expected %s, got %+v", want, a)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("action %s never dispatched", want)
		}
	}
}

func TestRenderPublishesState(t *testing.T) {
	local, remote := startBus(t)
	states := make(chan ui.State, 1)
	alerts := make(chan protocol.Alert, 1)
	if _, err := remote.Subscribe(protocol.SubjectUIState, func(data []byte) {
		var st ui.State
		if err := json.Unmarshal(data, &st); err == nil {
			states <- st
		}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := remote.Subscribe(protocol.SubjectUIAlert, func(data []byte) {
		var a protocol.Alert
		if err := json.Unmarshal(data, &a); err == nil {
			alerts <- a
		}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	flush(t, remote)

	v := New(local, newLogger())
	st := ui.NewState()
	st.Status = "Recording..."
	v.Render(st)
	v.Alert("no speech")
	flush(t, local)

	select {
	case got := <-states:
		if got.Status != "Recording..." || got.SelectedLanguage != "auto" {
			t.Fatalf("unexpected state %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state never published")
	}
	select {
	case got := <-alerts:
		if got.Message != "no speech" {
			t.Fatalf("unexpected alert %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert never published")
	}
}
