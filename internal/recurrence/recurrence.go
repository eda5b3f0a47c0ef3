// Package recurrence computes alarm fire instants from a wall-clock time of
// day and an optional weekday repeat mask.
package recurrence

import (
	"fmt"
	"time"

	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/teambition/rrule-go"
)

var rruleDay = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// FirstFire returns the first instant at hour:minute strictly after now.
// Without a repeat mask that is today, or tomorrow if the time has already
// passed (seconds are zeroed, so "now" itself counts as passed). With a mask
// it is the first matching weekday.
func FirstFire(now time.Time, hour, minute int, repeat model.Weekdays) time.Time {
	if repeat.Any() {
		if next, ok := NextRepeat(now, hour, minute, repeat); ok {
			return next
		}
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// NextRepeat returns the first instant strictly after now that falls on a day
// set in repeat at hour:minute. ok is false when the mask is empty.
func NextRepeat(now time.Time, hour, minute int, repeat model.Weekdays) (time.Time, bool) {
	days := repeat.Days()
	if len(days) == 0 {
		return time.Time{}, false
	}
	byDay := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		byDay = append(byDay, rruleDay[d])
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Byweekday: byDay,
		Byhour:    []int{hour},
		Byminute:  []int{minute},
		Bysecond:  []int{0},
	})
	if err != nil {
		return time.Time{}, false
	}
	next := r.After(now, false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// Advance moves a repeating alarm's fire time to its next occurrence after
// now, keeping its wall-clock time of day. ok is false for one-shot alarms.
func Advance(alarm model.Alarm, now time.Time) (model.Alarm, bool) {
	if !alarm.Repeat.Any() {
		return alarm, false
	}
	local := alarm.Time.In(now.Location())
	next, ok := NextRepeat(now, local.Hour(), local.Minute(), alarm.Repeat)
	if !ok {
		return alarm, false
	}
	alarm.Time = next
	return alarm, true
}

// Until renders the time left until t the way the home screen shows it,
// e.g. "7 hours 5 minutes". Anything under a minute reads as one minute.
func Until(now, t time.Time) string {
	totalMin := int((t.Sub(now) + 30*time.Second) / time.Minute)
	if totalMin < 1 {
		totalMin = 1
	}
	h, m := totalMin/60, totalMin%60
	out := ""
	if h > 0 {
		out = plural(h, "hour") + " "
	}
	return out + plural(m, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
