package status

import (
	"testing"

	"github.com/loqalabs/loqa-tutor/internal/ui"
)

func TestUpdateColors(t *testing.T) {
	cases := []struct {
		severity ui.Severity
		want     ui.Severity
		color    string
	}{
		{ui.SeverityDefault, ui.SeverityDefault, ColorDefault},
		{ui.SeveritySuccess, ui.SeveritySuccess, ColorSuccess},
		{ui.SeverityError, ui.SeverityError, ColorError},
		{ui.Severity("bogus"), ui.SeverityDefault, ColorDefault},
	}
	for _, tc := range cases {
		st := ui.NewState()
		New(&st).Update("msg", tc.severity)
		if st.Status != "msg" {
			t.Fatalf("expected message set, got %q", st.Status)
		}
		if st.Severity != tc.want || st.StatusColor != tc.color {
			t.Fatalf("severity %q: got %q/%q", tc.severity, st.Severity, st.StatusColor)
		}
	}
}

func TestUpdateKeepsOnlyLastCall(t *testing.T) {
	st := ui.NewState()
	p := New(&st)
	p.Update("Recording...", ui.SeverityDefault)
	p.Update("An error occurred.", ui.SeverityError)
	if st.Status != "An error occurred." || st.StatusColor != ColorError {
		t.Fatalf("unexpected state: %+v", st)
	}
}
