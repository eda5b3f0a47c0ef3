// Package lifecycle drives one alarm occurrence from armed through ringing to
// stopped or snoozed.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bark-labs/qr-alarm/internal/capability"
	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/bark-labs/qr-alarm/internal/notify"
	"github.com/bark-labs/qr-alarm/internal/scheduler"
	"github.com/bark-labs/qr-alarm/internal/verify"
)

// DefaultSnoozeInterval is how long a snoozed alarm waits before notifying
// again.
const DefaultSnoozeInterval = 2 * time.Minute

// Notification texts.
const (
	RingingTitle = "⏰ Alarm Ringing!"
	SnoozedTitle = "⏰ Alarm Snoozed!"
	ScanPrompt   = "Scan your QR code to stop."
)

// ErrNoPendingOccurrence is returned when a stop or snooze finds nothing
// ringing, typically because the other one won the race.
var ErrNoPendingOccurrence = errors.New("no pending alarm occurrence")

// State of the engine.
type State string

const (
	StateIdle    State = "idle"
	StateArmed   State = "armed"
	StateRinging State = "ringing"
	StateSnoozed State = "snoozed"
	StateStopped State = "stopped"
)

// EventKind names a transition.
type EventKind string

const (
	EventRinging EventKind = "ringing"
	EventStopped EventKind = "stopped"
	EventSnoozed EventKind = "snoozed"
)

// Event is delivered to observers after a transition has been committed.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Occurrence model.Occurrence `json:"occurrence"`
	At         time.Time        `json:"at"`
}

// Observer reacts to lifecycle events. Callbacks run synchronously on the
// goroutine that caused the transition, outside the engine lock, so they may
// call back into the engine.
type Observer interface {
	OnAlarmEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnAlarmEvent(e Event) { f(e) }

// Verifier authorizes a stop from a scanned payload.
type Verifier interface {
	Verify(ctx context.Context, payload string) (verify.Result, error)
}

// Options configures an Engine. Zero values fall back to no-op capabilities,
// the real clock, log-only notifications and the default snooze interval.
type Options struct {
	Clock          clock.Clock
	Verifier       Verifier
	Notifier       notify.Notifier
	Player         capability.Player
	Vibrator       capability.Vibrator
	SnoozeInterval time.Duration
	Observers      []Observer
	Logger         *slog.Logger
}

// Snapshot is a read-only view of the engine.
type Snapshot struct {
	State      State             `json:"state"`
	Occurrence *model.Occurrence `json:"occurrence,omitempty"`
	Verifying  bool              `json:"verifying"`
	Next       *model.Alarm      `json:"next,omitempty"`
	LastReason verify.Reason     `json:"lastReason,omitempty"`
}

// Engine owns the scheduler and the pending occurrence.
type Engine struct {
	clock    clock.Clock
	verifier Verifier
	notifier notify.Notifier
	player   capability.Player
	vibrator capability.Vibrator
	snooze   time.Duration
	sched    *scheduler.Scheduler
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	pending    *model.Occurrence
	seq        uint64
	verifying  int
	lastReason verify.Reason
	observers  []Observer
}

// New builds an idle engine.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogDispatcher(opts.Clock, opts.Logger)
	}
	if opts.Player == nil {
		opts.Player = capability.Nop{}
	}
	if opts.Vibrator == nil {
		opts.Vibrator = capability.NopVibrator{}
	}
	if opts.SnoozeInterval <= 0 {
		opts.SnoozeInterval = DefaultSnoozeInterval
	}
	e := &Engine{
		clock:     opts.Clock,
		verifier:  opts.Verifier,
		notifier:  opts.Notifier,
		player:    opts.Player,
		vibrator:  opts.Vibrator,
		snooze:    opts.SnoozeInterval,
		logger:    opts.Logger.With("component", "lifecycle"),
		state:     StateIdle,
		observers: append([]Observer(nil), opts.Observers...),
	}
	e.sched = scheduler.New(opts.Clock, e.ring, opts.Logger)
	return e
}

// Subscribe adds an observer.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Arm schedules the next alarm from alarms. While an occurrence is pending
// nothing is armed; the observers re-arm once it resolves.
func (e *Engine) Arm(alarms []model.Alarm) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.sched.Cancel()
		e.logger.Debug("arm deferred", "pending", e.pending.Alarm.ID)
		return
	}
	if _, ok := e.sched.RescheduleNext(alarms); ok {
		e.state = StateArmed
		return
	}
	e.state = StateIdle
}

// Disarm cancels any armed timer. A pending occurrence keeps ringing.
func (e *Engine) Disarm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sched.Cancel()
	if e.pending == nil {
		e.state = StateIdle
	}
}

func (e *Engine) ring(alarm model.Alarm) {
	e.mu.Lock()
	if e.pending != nil {
		e.mu.Unlock()
		e.logger.Warn("fire dropped, occurrence already pending", "alarm", alarm.ID)
		return
	}
	e.seq++
	occ := model.Occurrence{ID: e.seq, Alarm: alarm, FiredAt: e.clock.Now()}
	e.pending = &occ
	e.state = StateRinging
	e.lastReason = verify.ReasonNone
	e.mu.Unlock()

	e.logger.Info("alarm ringing", "alarm", alarm.ID, "label", alarm.Label, "occurrence", occ.ID)
	if alarm.Sound.URI != "" {
		if err := e.player.Start(alarm.Sound); err != nil {
			e.logger.Warn("sound start failed", "sound", alarm.Sound.Name, "error", err)
		}
	}
	if alarm.Vibrate {
		if err := e.vibrator.Start(); err != nil {
			e.logger.Warn("vibration start failed", "error", err)
		}
	}
	e.notifier.ScheduleImmediate(RingingTitle, ScanPrompt)
	e.emit(Event{Kind: EventRinging, Occurrence: occ, At: occ.FiredAt})
}

// Stop verifies payload and, when authorized, stops the ringing occurrence.
// A rejection leaves the occurrence ringing so the user can retry.
func (e *Engine) Stop(ctx context.Context, payload string) (verify.Result, error) {
	e.mu.Lock()
	if e.pending == nil {
		e.mu.Unlock()
		return verify.Result{}, ErrNoPendingOccurrence
	}
	id := e.pending.ID
	e.verifying++
	e.mu.Unlock()

	res, err := e.verifier.Verify(ctx, payload)

	e.mu.Lock()
	e.verifying--
	if err != nil {
		e.mu.Unlock()
		return verify.Result{}, err
	}
	if !res.Authorized {
		e.lastReason = res.Reason
		e.mu.Unlock()
		return res, nil
	}
	if e.pending == nil || e.pending.ID != id {
		e.mu.Unlock()
		return res, ErrNoPendingOccurrence
	}
	occ := *e.pending
	e.pending = nil
	e.state = StateStopped
	e.lastReason = verify.ReasonNone
	e.sched.Cancel()
	e.mu.Unlock()

	e.silence()
	e.logger.Info("alarm stopped", "alarm", occ.Alarm.ID, "occurrence", occ.ID)
	e.emit(Event{Kind: EventStopped, Occurrence: occ, At: e.clock.Now()})
	return res, nil
}

// Snooze silences the ringing occurrence and schedules a reminder after the
// snooze interval.
func (e *Engine) Snooze() error {
	e.mu.Lock()
	if e.pending == nil {
		e.mu.Unlock()
		return ErrNoPendingOccurrence
	}
	occ := *e.pending
	e.pending = nil
	e.state = StateSnoozed
	e.mu.Unlock()

	e.silence()
	e.notifier.ScheduleDelayed(SnoozedTitle, ScanPrompt, e.snooze)
	e.logger.Info("alarm snoozed", "alarm", occ.Alarm.ID, "occurrence", occ.ID, "for", e.snooze.String())
	e.emit(Event{Kind: EventSnoozed, Occurrence: occ, At: e.clock.Now()})
	return nil
}

// Foreground handles the app returning to the foreground. A pending,
// unstopped occurrence is snoozed; otherwise it is a no-op. It reports
// whether a snooze happened.
func (e *Engine) Foreground() bool {
	return e.Snooze() == nil
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{State: e.state, Verifying: e.verifying > 0, LastReason: e.lastReason}
	if e.pending != nil {
		occ := *e.pending
		s.Occurrence = &occ
	}
	if next, ok := e.sched.Armed(); ok {
		s.Next = &next
	}
	return s
}

func (e *Engine) silence() {
	if err := e.player.Stop(); err != nil {
		e.logger.Warn("sound stop failed", "error", err)
	}
	if err := e.vibrator.Stop(); err != nil {
		e.logger.Warn("vibration stop failed", "error", err)
	}
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()
	for _, o := range observers {
		o.OnAlarmEvent(ev)
	}
}
