package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/lifecycle"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/bark-labs/qr-alarm/internal/recurrence"
	"github.com/bark-labs/qr-alarm/internal/scheduler"
	"github.com/google/uuid"
)

var (
	// ErrAlarmNotFound is returned for an unknown alarm id.
	ErrAlarmNotFound = errors.New("alarm not found")
	// ErrInvalidTime rejects an hour or minute out of range.
	ErrInvalidTime = errors.New("invalid alarm time")
)

// AlarmRepository persists the alarm collection.
type AlarmRepository interface {
	Load(ctx context.Context) []model.Alarm
	Save(ctx context.Context, alarms []model.Alarm) error
}

// Armer arms the next alarm.
type Armer interface {
	Arm(alarms []model.Alarm)
}

// AlarmService applies user edits to the alarm collection. Every mutation is
// saved, read back and handed to the engine so exactly one timer reflects the
// stored state.
type AlarmService struct {
	repo   AlarmRepository
	armer  Armer
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	alarms []model.Alarm
}

// NewAlarmService constructs AlarmService.
func NewAlarmService(repo AlarmRepository, armer Armer, c clock.Clock, logger *slog.Logger) *AlarmService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlarmService{repo: repo, armer: armer, clock: c, logger: logger.With("component", "alarms")}
}

// Start loads the stored alarms, rolls stale repeating alarms forward,
// disables one-shot alarms that came due while the daemon was down and arms
// the next one.
func (s *AlarmService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alarms := s.repo.Load(ctx)
	now := s.clock.Now()
	changed := false
	for i, a := range alarms {
		if !a.Enabled || a.Time.After(now) {
			continue
		}
		if next, ok := recurrence.Advance(a, now); ok {
			alarms[i] = next
		} else {
			alarms[i].Enabled = false
		}
		changed = true
	}
	if changed {
		s.commitLocked(ctx, alarms)
		return
	}
	s.alarms = alarms
	s.armer.Arm(cloneAlarms(alarms))
	s.logger.Info("alarms loaded", "count", len(alarms))
}

// List returns the alarms in stored order.
func (s *AlarmService) List() []model.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAlarms(s.alarms)
}

// Get returns one alarm.
func (s *AlarmService) Get(id string) (model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Alarm{}, ErrAlarmNotFound
	}
	return s.alarms[i], nil
}

// Create adds an enabled alarm at the next occurrence of the chosen time.
func (s *AlarmService) Create(ctx context.Context, in model.AlarmInput) (model.Alarm, error) {
	if err := validate(in); err != nil {
		return model.Alarm{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return model.Alarm{}, fmt.Errorf("alarm id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	alarm := s.build(id.String(), in)
	next := append(cloneAlarms(s.alarms), alarm)
	s.commitLocked(ctx, next)
	s.logger.Info("alarm created", "alarm", alarm.ID, "time", alarm.Time, "repeat", alarm.Repeat.String())
	return alarm, nil
}

// Update replaces an alarm's settings. The edited alarm is re-enabled.
func (s *AlarmService) Update(ctx context.Context, id string, in model.AlarmInput) (model.Alarm, error) {
	if err := validate(in); err != nil {
		return model.Alarm{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Alarm{}, ErrAlarmNotFound
	}
	next := cloneAlarms(s.alarms)
	next[i] = s.build(id, in)
	s.commitLocked(ctx, next)
	return next[i], nil
}

// Toggle flips an alarm on or off. An alarm switched on after its time has
// passed moves to its next occurrence.
func (s *AlarmService) Toggle(ctx context.Context, id string) (model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Alarm{}, ErrAlarmNotFound
	}
	next := cloneAlarms(s.alarms)
	a := next[i]
	a.Enabled = !a.Enabled
	if now := s.clock.Now(); a.Enabled && !a.Time.After(now) {
		local := a.Time.In(now.Location())
		a.Time = recurrence.FirstFire(now, local.Hour(), local.Minute(), a.Repeat)
	}
	next[i] = a
	s.commitLocked(ctx, next)
	return a, nil
}

// Delete removes an alarm.
func (s *AlarmService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrAlarmNotFound
	}
	next := cloneAlarms(s.alarms)
	next = append(next[:i], next[i+1:]...)
	s.commitLocked(ctx, next)
	return nil
}

// Next summarises the upcoming alarm.
func (s *AlarmService) Next() model.NextAlarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := scheduler.ComputeNext(s.alarms)
	if !ok {
		return model.NextAlarm{}
	}
	return model.NextAlarm{Alarm: &a, ETA: recurrence.Until(s.clock.Now(), a.Time)}
}

// OnAlarmEvent advances a repeating alarm to its next day once an occurrence
// resolves, or disables a one-shot alarm, then re-arms.
func (s *AlarmService) OnAlarmEvent(ev lifecycle.Event) {
	if ev.Kind != lifecycle.EventStopped && ev.Kind != lifecycle.EventSnoozed {
		return
	}
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneAlarms(s.alarms)
	if i := indexOf(next, ev.Occurrence.Alarm.ID); i >= 0 {
		if advanced, ok := recurrence.Advance(next[i], s.clock.Now()); ok {
			next[i] = advanced
		} else {
			next[i].Enabled = false
		}
	}
	s.commitLocked(ctx, next)
}

// commitLocked saves next, reads it back and re-arms. A failed save keeps the
// in-memory copy so the change still applies until restart.
func (s *AlarmService) commitLocked(ctx context.Context, next []model.Alarm) {
	if err := s.repo.Save(ctx, next); err != nil {
		s.logger.Warn("save alarms failed, keeping changes in memory", "error", err)
		s.alarms = next
	} else {
		s.alarms = s.repo.Load(ctx)
	}
	s.armer.Arm(cloneAlarms(s.alarms))
}

func (s *AlarmService) build(id string, in model.AlarmInput) model.Alarm {
	sound := in.Sound
	if strings.TrimSpace(sound.Name) == "" {
		sound.Name = model.DefaultSoundName
	}
	return model.Alarm{
		ID:      id,
		Time:    recurrence.FirstFire(s.clock.Now(), in.Hour, in.Minute, in.Repeat),
		Enabled: true,
		Label:   strings.TrimSpace(in.Label),
		Vibrate: in.VibrateOrDefault(),
		Repeat:  in.Repeat,
		Sound:   sound,
	}
}

func (s *AlarmService) indexLocked(id string) int {
	return indexOf(s.alarms, id)
}

func validate(in model.AlarmInput) error {
	if in.Hour < 0 || in.Hour > 23 || in.Minute < 0 || in.Minute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, in.Hour, in.Minute)
	}
	return nil
}

func indexOf(alarms []model.Alarm, id string) int {
	for i, a := range alarms {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func cloneAlarms(alarms []model.Alarm) []model.Alarm {
	out := make([]model.Alarm, len(alarms))
	copy(out, alarms)
	return out
}
