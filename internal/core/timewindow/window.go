package timewindow

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// Window ist ein tägliches Zeitfenster, in dem Bilder verarbeitet werden.
// Ein nil-Window ist immer aktiv.
type Window struct {
	start time.Duration // seit Mitternacht
	end   time.Duration
}

// New erstellt ein Zeitfenster aus zwei Uhrzeiten im Format HH:MM.
// Fehlt start oder end, wird nil zurückgegeben (immer aktiv).
func New(start, end string) (*Window, error) {
	if start == "" || end == "" {
		return nil, nil
	}

	s, err := ParseClock(start)
	if err != nil {
		return nil, fmt.Errorf("invalid time window start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return nil, fmt.Errorf("invalid time window end: %w", err)
	}

	return &Window{start: s, end: e}, nil
}

// ParseClock wandelt HH:MM in die Dauer seit Mitternacht um
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Active prüft, ob die Uhrzeit von now im Fenster liegt. Grenzen zählen zum Fenster.
// Ist start >= end, geht das Fenster über Mitternacht.
func (w *Window) Active(now time.Time) bool {
	if w == nil {
		return true
	}

	clock := sinceMidnight(now)
	if w.start < w.end {
		return w.start <= clock && clock <= w.end
	}
	return clock >= w.start || clock <= w.end
}

// String gibt das Fenster als [HH:MM, HH:MM] zurück
func (w *Window) String() string {
	if w == nil {
		return "[always]"
	}
	return fmt.Sprintf("[%s, %s]", formatClock(w.start), formatClock(w.end))
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
