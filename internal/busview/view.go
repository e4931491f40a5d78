package busview

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-tutor/internal/bus"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/ui"
)

// View mirrors the UI onto the bus: state snapshots and alerts are published,
// and actions received from remote clients are handed to dispatch.
type View struct {
	client *bus.Client
	sub    *nats.Subscription
	log    *slog.Logger
}

func New(client *bus.Client, log *slog.Logger) *View {
	return &View{
		client: client,
		log:    log.With(slog.String("component", "busview")),
	}
}

// Listen subscribes to the action subject. dispatch is called from the NATS
// delivery goroutine and must be safe for concurrent use.
func (v *View) Listen(dispatch func(protocol.Action)) error {
	sub, err := v.client.Subscribe(protocol.SubjectUIAction, func(data []byte) {
		var action protocol.Action
		if err := json.Unmarshal(data, &action); err != nil {
			v.log.Warn("discarding malformed action", slog.String("error", err.Error()))
			return
		}
		if action.Kind == "" {
			v.log.Warn("discarding action without kind")
			return
		}
		dispatch(action)
	})
	if err != nil {
		return fmt.Errorf("subscribe actions: %w", err)
	}
	v.sub = sub
	return nil
}

func (v *View) Render(st ui.State) {
	if err := v.client.PublishJSON(protocol.SubjectUIState, st); err != nil {
		v.log.Warn("failed to publish state", slog.String("error", err.Error()))
	}
}

func (v *View) Alert(message string) {
	if err := v.client.PublishJSON(protocol.SubjectUIAlert, protocol.Alert{Message: message}); err != nil {
		v.log.Warn("failed to publish alert", slog.String("error", err.Error()))
	}
}

// Close stops receiving actions.
func (v *View) Close() error {
	if v.sub == nil {
		return nil
	}
	return v.sub.Unsubscribe()
}
