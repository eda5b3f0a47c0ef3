package model

import (
	"strings"
	"time"
)

// DefaultSoundName is shown when no custom tone was picked.
const DefaultSoundName = "Default"

// Alarm is one user-defined alarm. Time is the next instant it fires.
type Alarm struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Enabled bool      `json:"enabled"`
	Label   string    `json:"label"`
	Vibrate bool      `json:"vibrate"`
	Repeat  Weekdays  `json:"repeat"`
	Sound   Sound     `json:"sound"`
}

// Sound points at the tone played while ringing. An empty URI means the
// platform default.
type Sound struct {
	URI  string `json:"uri,omitempty"`
	Name string `json:"name"`
}

// Weekdays is a repeat mask indexed by time.Weekday (Sunday first).
type Weekdays [7]bool

// Any reports whether at least one day is set.
func (w Weekdays) Any() bool {
	for _, on := range w {
		if on {
			return true
		}
	}
	return false
}

// Days returns the set weekdays in order.
func (w Weekdays) Days() []time.Weekday {
	var days []time.Weekday
	for i, on := range w {
		if on {
			days = append(days, time.Weekday(i))
		}
	}
	return days
}

// String renders the mask as day initials, "-" for unset days.
func (w Weekdays) String() string {
	const initials = "SMTWTFS"
	var b strings.Builder
	for i, on := range w {
		if on {
			b.WriteByte(initials[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// AlarmInput is what the editor submits when creating or editing an alarm.
type AlarmInput struct {
	Hour    int      `json:"hour"`
	Minute  int      `json:"minute"`
	Label   string   `json:"label"`
	Vibrate *bool    `json:"vibrate,omitempty"`
	Repeat  Weekdays `json:"repeat"`
	Sound   Sound    `json:"sound"`
}

// VibrateOrDefault defaults vibration to on, like the editor does.
func (in AlarmInput) VibrateOrDefault() bool {
	if in.Vibrate == nil {
		return true
	}
	return *in.Vibrate
}

// Occurrence is one firing of an alarm awaiting dismissal.
type Occurrence struct {
	ID      uint64    `json:"id"`
	Alarm   Alarm     `json:"alarm"`
	FiredAt time.Time `json:"firedAt"`
}
