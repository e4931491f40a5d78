package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"

	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/ui"
)

// DefaultLanguage is assumed when the backend omits the detected language.
const DefaultLanguage = "en"

// Renderer projects a transcription result into the shared UI state.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	state  *ui.State
}

func New(state *ui.State) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		// Raw HTML is passed through and left to the sanitizer.
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return &Renderer{
		md:     md,
		policy: bluemonday.UGCPolicy(),
		state:  state,
	}
}

// Markdown converts src to sanitized HTML.
func (r *Renderer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Render stores the result in the UI state, enables playback and records the
// detected language.
func (r *Renderer) Render(res protocol.TranscriptionResult) error {
	corrected, err := r.Markdown(res.CorrectedText)
	if err != nil {
		return fmt.Errorf("corrected text: %w", err)
	}
	explanation, err := r.Markdown(res.Explanation)
	if err != nil {
		return fmt.Errorf("explanation: %w", err)
	}

	r.state.TranscribedText = res.TranscribedText
	r.state.CorrectedHTML = corrected
	r.state.ExplanationHTML = explanation

	lang := strings.TrimSpace(res.LanguageCode)
	if lang == "" {
		lang = DefaultLanguage
	}
	r.state.DetectedLanguage = lang
	r.state.Controls.PlayEnabled = true
	return nil
}

var blockEnds = map[string]bool{
	"p": true, "br": true, "li": true, "div": true, "tr": true, "pre": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// PlainText returns the visible text of an HTML fragment, the way a browser
// reports it for a rendered element.
func PlainText(fragment string) string {
	z := xhtml.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return strings.TrimSpace(b.String())
		case xhtml.TextToken:
			b.Write(z.Text())
		case xhtml.EndTagToken, xhtml.SelfClosingTagToken, xhtml.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "br" || (tt == xhtml.EndTagToken && blockEnds[tag]) {
				if !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte('\n')
				}
			}
		}
	}
}
