package protocol

// AudioBlob is a single packaged recording ready for upload.
type AudioBlob struct {
	Data     []byte
	MIMEType string
	Filename string
}

// TranscriptionResult is the backend response to an upload.
type TranscriptionResult struct {
	TranscribedText string `json:"transcribed_text"`
	CorrectedText   string `json:"corrected_text"`
	Explanation     string `json:"explanation"`
	LanguageCode    string `json:"language_code"`
	Error           string `json:"error,omitempty"`
}

// Action is a user interaction posted by a UI surface.
type Action struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// Alert is a blocking, user-facing message.
type Alert struct {
	Message string `json:"message"`
}

const (
	PathProcessAudio = "/process_audio"

	FieldAudio    = "audio_data"
	FieldLanguage = "language"

	AudioFilename = "recording.webm"
	AudioMIMEType = "audio/webm"
)

const (
	ActionRecord         = "record"
	ActionStop           = "stop"
	ActionPlay           = "play"
	ActionSelectLanguage = "select_language"
	ActionSelectVoice    = "select_voice"
	ActionSetRate        = "set_rate"
)

const (
	SubjectUIAction = "tutor.ui.action"
	SubjectUIState  = "tutor.ui.state"
	SubjectUIAlert  = "tutor.ui.alert"
)
