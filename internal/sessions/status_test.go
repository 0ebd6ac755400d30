package sessions

import (
	"testing"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func TestStatusFromProbe_Ladder(t *testing.T) {
	pending := `{"event":"session.pending","eventId":"e1"}`
	input := `{"event":"session.input","eventId":"e2"}`
	turnStart := `{"event":"session.turn.start","eventId":"e3"}`
	turnComplete := `{"event":"session.turn.complete","eventId":"e4"}`
	interrupted := `{"event":"session.interrupted","eventId":"e5"}`

	tests := []struct {
		name   string
		exists bool
		size   int64
		first  string
		second string
		last   string
		want   models.SessionStatus
	}{
		{"missing file", false, 0, "", "", "", models.StatusNotFound},
		{"zero bytes", true, 0, "", "", "", models.StatusEmpty},
		{"single pending line", true, 40, pending, "", pending, models.StatusInitialized},
		{"mid turn", true, 120, pending, input, turnStart, models.StatusBusy},
		{"input is last", true, 80, pending, input, input, models.StatusBusy},
		{"completed turn", true, 160, pending, input, turnComplete, models.StatusReady},
		{"interrupted turn", true, 160, pending, input, interrupted, models.StatusReady},
		{"pending tail after history", true, 120, pending, input, pending, models.StatusReady},
		{"malformed first line", true, 40, "not json", "", "not json", models.StatusMalformed},
		{"malformed last line", true, 120, pending, input, "{torn", models.StatusMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _, _ := statusFromProbe(tt.exists, tt.size, tt.first, tt.second, tt.last)
			if got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusFromProbe_CoversEveryStatus(t *testing.T) {
	// Every enum value must be reachable from some probe.
	reachable := map[models.SessionStatus]bool{
		models.StatusNotFound:    false,
		models.StatusEmpty:       false,
		models.StatusInitialized: false,
		models.StatusBusy:        false,
		models.StatusMalformed:   false,
		models.StatusReady:       false,
	}

	probes := []struct {
		exists              bool
		size                int64
		first, second, last string
	}{
		{false, 0, "", "", ""},
		{true, 0, "", "", ""},
		{true, 40, `{"event":"session.pending"}`, "", `{"event":"session.pending"}`},
		{true, 80, `{"event":"session.pending"}`, `{"event":"session.input"}`, `{"event":"session.input"}`},
		{true, 40, "x", "", "x"},
		{true, 80, `{"event":"session.pending"}`, `{"event":"session.input"}`, `{"event":"session.turn.complete"}`},
	}
	for _, p := range probes {
		got, _, _, _ := statusFromProbe(p.exists, p.size, p.first, p.second, p.last)
		reachable[got] = true
	}

	for status, seen := range reachable {
		if !seen {
			t.Errorf("status %q not reachable by any probe", status)
		}
	}
}
