package tutor

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	recordings    metric.Int64Counter
	uploads       metric.Int64Counter
	uploadLatency metric.Float64Histogram
	playbacks     metric.Int64Counter
}

func newMetrics(log *slog.Logger) *metrics {
	meter := otel.Meter("github.com/loqalabs/loqa-tutor/tutor")
	m := &metrics{}
	var err error
	if m.recordings, err = meter.Int64Counter("tutor.recordings",
		metric.WithDescription("Recordings started, by outcome")); err != nil {
		log.Warn("failed to create metric", slog.String("metric", "tutor.recordings"), slog.String("error", err.Error()))
	}
	if m.uploads, err = meter.Int64Counter("tutor.uploads",
		metric.WithDescription("Upload attempts, by outcome")); err != nil {
		log.Warn("failed to create metric", slog.String("metric", "tutor.uploads"), slog.String("error", err.Error()))
	}
	if m.uploadLatency, err = meter.Float64Histogram("tutor.upload.duration",
		metric.WithDescription("Time from packaging to backend response"),
		metric.WithUnit("s")); err != nil {
		log.Warn("failed to create metric", slog.String("metric", "tutor.upload.duration"), slog.String("error", err.Error()))
	}
	if m.playbacks, err = meter.Int64Counter("tutor.playbacks",
		metric.WithDescription("Playback requests, by outcome")); err != nil {
		log.Warn("failed to create metric", slog.String("metric", "tutor.playbacks"), slog.String("error", err.Error()))
	}
	return m
}

func outcome(value string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("outcome", value))
}

func (m *metrics) recording(ctx context.Context, result string) {
	if m.recordings != nil {
		m.recordings.Add(ctx, 1, outcome(result))
	}
}

func (m *metrics) upload(ctx context.Context, result string, took time.Duration) {
	if m.uploads != nil {
		m.uploads.Add(ctx, 1, outcome(result))
	}
	if m.uploadLatency != nil {
		m.uploadLatency.Record(ctx, took.Seconds(), outcome(result))
	}
}

func (m *metrics) playback(ctx context.Context, result string) {
	if m.playbacks != nil {
		m.playbacks.Add(ctx, 1, outcome(result))
	}
}
