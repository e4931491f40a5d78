package status

import "github.com/loqalabs/loqa-tutor/internal/ui"

const (
	ColorDefault = "#4a6cf7"
	ColorSuccess = "#28a745"
	ColorError   = "#dc3545"
)

// Presenter writes the status line of the shared UI state.
type Presenter struct {
	state *ui.State
}

func New(state *ui.State) *Presenter {
	return &Presenter{state: state}
}

// Update sets the message and its colour coding. Unknown severities render
// as default.
func (p *Presenter) Update(message string, severity ui.Severity) {
	p.state.Status = message
	switch severity {
	case ui.SeveritySuccess:
		p.state.Severity = ui.SeveritySuccess
		p.state.StatusColor = ColorSuccess
	case ui.SeverityError:
		p.state.Severity = ui.SeverityError
		p.state.StatusColor = ColorError
	default:
		p.state.Severity = ui.SeverityDefault
		p.state.StatusColor = ColorDefault
	}
}
