package scheduler

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/model"
)

// ErrSchedulingSkipped is informational: nothing was armed because no
// enabled alarm lies in the future.
var ErrSchedulingSkipped = errors.New("scheduling skipped")

// FireFunc receives the alarm whose timer elapsed.
type FireFunc func(model.Alarm)

// Scheduler keeps at most one timer armed, for the next alarm due.
type Scheduler struct {
	clock  clock.Clock
	fire   FireFunc
	logger *slog.Logger

	mu    sync.Mutex
	timer clock.Timer
	armed *model.Alarm
	gen   uint64
}

// New builds a scheduler that calls fire when the armed alarm is due.
func New(c clock.Clock, fire FireFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{clock: c, fire: fire, logger: logger.With("component", "scheduler")}
}

// ComputeNext returns the enabled alarm with the earliest time. Ties go to the
// smallest id so repeated calls on the same input agree.
func ComputeNext(alarms []model.Alarm) (model.Alarm, bool) {
	var (
		next  model.Alarm
		found bool
	)
	for _, a := range alarms {
		if !a.Enabled {
			continue
		}
		if !found || a.Time.Before(next.Time) || (a.Time.Equal(next.Time) && a.ID < next.ID) {
			next = a
			found = true
		}
	}
	return next, found
}

// RescheduleNext cancels any armed timer and arms one for the next alarm if it
// is strictly in the future. It reports the alarm armed, if any.
func (s *Scheduler) RescheduleNext(alarms []model.Alarm) (model.Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()

	next, ok := ComputeNext(alarms)
	if !ok {
		s.logger.Debug("nothing to arm", "reason", ErrSchedulingSkipped, "detail", "no enabled alarms")
		return model.Alarm{}, false
	}
	wait := next.Time.Sub(s.clock.Now())
	if wait <= 0 {
		s.logger.Info("nothing to arm", "reason", ErrSchedulingSkipped, "detail", "next alarm already passed", "alarm", next.ID, "time", next.Time)
		return model.Alarm{}, false
	}

	gen := s.gen
	armed := next
	s.armed = &armed
	s.timer = s.clock.AfterFunc(wait, func() { s.elapsed(gen) })
	if s.timer == nil {
		// platform refused the timer; degrade instead of failing
		s.armed = nil
		s.logger.Warn("timer could not be armed", "alarm", next.ID)
		return model.Alarm{}, false
	}
	s.logger.Info("alarm armed", "alarm", next.ID, "time", next.Time, "in", wait.String())
	return next, true
}

// Cancel disarms the pending timer, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Armed returns the alarm the current timer is set for.
func (s *Scheduler) Armed() (model.Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed == nil {
		return model.Alarm{}, false
	}
	return *s.armed, true
}

func (s *Scheduler) cancelLocked() {
	// bumping gen turns a callback already in flight into a no-op
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = nil
}

func (s *Scheduler) elapsed(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.armed == nil {
		s.mu.Unlock()
		return
	}
	alarm := *s.armed
	s.armed = nil
	s.timer = nil
	s.gen++
	s.mu.Unlock()

	s.logger.Info("alarm due", "alarm", alarm.ID)
	if s.fire != nil {
		s.fire(alarm)
	}
}
