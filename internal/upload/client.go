package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-tutor/internal/protocol"
)

// ErrMalformedResponse reports a body that is not a JSON object, or a
// success body missing the corrected text or the explanation.
var ErrMalformedResponse = errors.New("malformed response")

const maxResponseBytes = 1 << 20

// ServiceError carries the backend's error field.
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("transcription service error (status %d): %s", e.StatusCode, e.Detail)
}

// Client posts recordings to the transcription backend. It makes exactly one
// attempt per Send.
type Client struct {
	endpoint string
	http     *http.Client
	tracer   trace.Tracer
	log      *slog.Logger
}

func New(endpoint string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		tracer:   otel.Tracer("github.com/loqalabs/loqa-tutor/upload"),
		log:      log.With(slog.String("component", "upload")),
	}
}

// Send uploads blob with the selected language and decodes the result.
func (c *Client) Send(ctx context.Context, blob protocol.AudioBlob, language string) (protocol.TranscriptionResult, error) {
	ctx, span := c.tracer.Start(ctx, "upload.process_audio",
		trace.WithAttributes(
			attribute.String("language", language),
			attribute.Int("audio.bytes", len(blob.Data)),
		))
	defer span.End()

	res, err := c.send(ctx, blob, language)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return protocol.TranscriptionResult{}, err
	}
	span.SetAttributes(attribute.String("language.detected", res.LanguageCode))
	return res, nil
}

func (c *Client) send(ctx context.Context, blob protocol.AudioBlob, language string) (protocol.TranscriptionResult, error) {
	body, contentType, err := encodeForm(blob, language)
	if err != nil {
		return protocol.TranscriptionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+protocol.PathProcessAudio, body)
	if err != nil {
		return protocol.TranscriptionResult{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.TranscriptionResult{}, fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return protocol.TranscriptionResult{}, fmt.Errorf("read upload response: %w", err)
	}
	c.log.Debug("upload completed",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("latency", time.Since(start)))
	if len(data) > maxResponseBytes {
		return protocol.TranscriptionResult{}, fmt.Errorf("%w: status %d: body exceeds %d bytes", ErrMalformedResponse, resp.StatusCode, maxResponseBytes)
	}
	return decodeResult(resp.StatusCode, resp.Status, data)
}

func decodeResult(code int, status string, data []byte) (protocol.TranscriptionResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return protocol.TranscriptionResult{}, fmt.Errorf("%w: status %d: %v", ErrMalformedResponse, code, err)
	}
	if fields == nil {
		return protocol.TranscriptionResult{}, fmt.Errorf("%w: status %d: body is null", ErrMalformedResponse, code)
	}

	var res protocol.TranscriptionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return protocol.TranscriptionResult{}, fmt.Errorf("%w: status %d: %v", ErrMalformedResponse, code, err)
	}
	if res.Error != "" {
		return protocol.TranscriptionResult{}, &ServiceError{StatusCode: code, Detail: res.Error}
	}
	if code >= 300 {
		return protocol.TranscriptionResult{}, &ServiceError{StatusCode: code, Detail: status}
	}
	for _, key := range []string{"corrected_text", "explanation"} {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			return protocol.TranscriptionResult{}, fmt.Errorf("%w: missing %s", ErrMalformedResponse, key)
		}
	}
	return res, nil
}

func encodeForm(blob protocol.AudioBlob, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := blob.Filename
	if filename == "" {
		filename = protocol.AudioFilename
	}
	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = protocol.AudioMIMEType
	}

	// CreateFormFile forces application/octet-stream; the backend decodes by
	// the part's declared type.
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, protocol.FieldAudio, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return nil, "", fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.WriteField(protocol.FieldLanguage, language); err != nil {
		return nil, "", fmt.Errorf("write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
