package ui

// Severity classifies a status message.
type Severity string

const (
	SeverityDefault Severity = "default"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Option is one entry of a dropdown.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Controls holds the enable flags of the three action controls.
type Controls struct {
	RecordEnabled bool `json:"record_enabled"`
	StopEnabled   bool `json:"stop_enabled"`
	PlayEnabled   bool `json:"play_enabled"`
}

// State is the single UI state object. It is owned by the controller loop and
// passed by pointer to each component; views only ever receive copies.
// Slices are replaced, never mutated in place, so copies stay stable.
type State struct {
	Status      string   `json:"status"`
	Severity    Severity `json:"severity"`
	StatusColor string   `json:"status_color"`

	Controls       Controls `json:"controls"`
	SpinnerVisible bool     `json:"spinner_visible"`
	BannerVisible  bool     `json:"banner_visible"`

	TranscribedText string `json:"transcribed_text"`
	CorrectedHTML   string `json:"corrected_html"`
	ExplanationHTML string `json:"explanation_html"`

	Languages        []Option `json:"languages"`
	SelectedLanguage string   `json:"selected_language"`
	DetectedLanguage string   `json:"detected_language"`

	Voices        []Option `json:"voices"`
	SelectedVoice int      `json:"selected_voice"`

	Rate      float64 `json:"rate"`
	RateLabel string  `json:"rate_label"`
}

// NewState returns the state shown before any interaction.
func NewState() State {
	return State{
		Severity:         SeverityDefault,
		Controls:         Controls{RecordEnabled: true},
		SelectedLanguage: "auto",
		DetectedLanguage: "en",
		SelectedVoice:    -1,
		Rate:             1,
		RateLabel:        "1",
	}
}
