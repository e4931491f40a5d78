package ui

import (
	"context"
	"log/slog"
)

// View is a UI surface that presents state snapshots.
type View interface {
	Render(State)
	// Alert shows a blocking message the user must acknowledge.
	Alert(message string)
}

type MultiView struct {
	list []View
}

func NewMultiView(list ...View) *MultiView {
	return &MultiView{list: list}
}

func (m *MultiView) Render(st State) {
	for _, v := range m.list {
		if v != nil {
			v.Render(st)
		}
	}
}

func (m *MultiView) Alert(message string) {
	for _, v := range m.list {
		if v != nil {
			v.Alert(message)
		}
	}
}

// LogView logs status transitions at debug level and alerts at warn.
type LogView struct {
	log  *slog.Logger
	last string
}

func NewLogView(log *slog.Logger) *LogView {
	if log == nil {
		log = slog.Default()
	}
	return &LogView{log: log.With(slog.String("component", "ui"))}
}

func (l *LogView) Render(st State) {
	if st.Status == l.last {
		return
	}
	l.last = st.Status
	l.log.LogAttrs(context.TODO(), slog.LevelDebug, "status",
		slog.String("message", st.Status),
		slog.String("severity", string(st.Severity)),
		slog.Bool("record_enabled", st.Controls.RecordEnabled),
		slog.Bool("stop_enabled", st.Controls.StopEnabled),
		slog.Bool("play_enabled", st.Controls.PlayEnabled),
	)
}

func (l *LogView) Alert(message string) {
	l.log.Warn("alert", slog.String("message", message))
}
