package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/logger"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 15, 22, 0, 0, 0, time.UTC)

type fireRecorder struct {
	mu    sync.Mutex
	fired []model.Alarm
}

func (r *fireRecorder) fire(a model.Alarm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, a)
}

func (r *fireRecorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, a := range r.fired {
		ids = append(ids, a.ID)
	}
	return ids
}

func alarm(id string, in time.Duration, enabled bool) model.Alarm {
	return model.Alarm{ID: id, Time: t0.Add(in), Enabled: enabled}
}

func TestComputeNext(t *testing.T) {
	cases := []struct {
		name   string
		alarms []model.Alarm
		want   string
	}{
		{"empty", nil, ""},
		{"single enabled", []model.Alarm{alarm("a", time.Hour, true)}, "a"},
		{"single disabled", []model.Alarm{alarm("a", time.Hour, false)}, ""},
		{
			"earliest enabled wins over earlier disabled",
			[]model.Alarm{
				alarm("a", 3*time.Hour, true),
				alarm("b", time.Minute, false),
				alarm("c", 2*time.Hour, true),
				alarm("d", 30*time.Minute, false),
				alarm("e", 9*time.Hour, true),
			},
			"c",
		},
		{
			"tie broken by id",
			[]model.Alarm{
				alarm("m", time.Hour, true),
				alarm("k", time.Hour, true),
				alarm("z", time.Hour, true),
			},
			"k",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ComputeNext(tc.alarms)
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, got.ID)

			again, _ := ComputeNext(tc.alarms)
			assert.Equal(t, got, again, "must be stable across calls")
		})
	}
}

func TestRescheduleNext_IsIdempotent(t *testing.T) {
	fc := clock.NewFake(t0)
	rec := &fireRecorder{}
	s := New(fc, rec.fire, logger.Discard())
	alarms := []model.Alarm{alarm("a", time.Hour, true), alarm("b", 2*time.Hour, true)}

	s.RescheduleNext(alarms)
	s.RescheduleNext(alarms)
	assert.Equal(t, 1, fc.Pending())

	fc.Advance(3 * time.Hour)
	assert.Equal(t, []string{"a"}, rec.ids(), "exactly one ring for the armed alarm")
}

func TestRescheduleNext_PastAlarmArmsNothing(t *testing.T) {
	fc := clock.NewFake(t0)
	s := New(fc, nil, logger.Discard())

	_, ok := s.RescheduleNext([]model.Alarm{alarm("a", -time.Minute, true)})
	assert.False(t, ok)
	assert.Equal(t, 0, fc.Pending())

	_, ok = s.RescheduleNext([]model.Alarm{alarm("a", 0, true)})
	assert.False(t, ok, "due exactly now is not strictly in the future")
}

func TestRescheduleNext_ReplacesPreviousTimer(t *testing.T) {
	fc := clock.NewFake(t0)
	rec := &fireRecorder{}
	s := New(fc, rec.fire, logger.Discard())

	s.RescheduleNext([]model.Alarm{alarm("late", 2*time.Hour, true)})
	armed, ok := s.RescheduleNext([]model.Alarm{alarm("early", time.Hour, true)})
	require.True(t, ok)
	assert.Equal(t, "early", armed.ID)
	assert.Equal(t, 1, fc.Pending())

	deadline, ok := fc.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), deadline)

	fc.Advance(3 * time.Hour)
	assert.Equal(t, []string{"early"}, rec.ids())
}

func TestFire_ClearsArmed(t *testing.T) {
	fc := clock.NewFake(t0)
	rec := &fireRecorder{}
	s := New(fc, rec.fire, logger.Discard())

	s.RescheduleNext([]model.Alarm{alarm("a", time.Minute, true)})
	got, ok := s.Armed()
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	fc.Advance(time.Minute)
	_, ok = s.Armed()
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, rec.ids())
}

func TestCancel(t *testing.T) {
	fc := clock.NewFake(t0)
	rec := &fireRecorder{}
	s := New(fc, rec.fire, logger.Discard())

	s.RescheduleNext([]model.Alarm{alarm("a", time.Minute, true)})
	s.Cancel()
	assert.Equal(t, 0, fc.Pending())
	fc.Advance(time.Hour)
	assert.Empty(t, rec.ids())
}

func TestStaleCallbackIsIgnored(t *testing.T) {
	fc := clock.NewFake(t0)
	rec := &fireRecorder{}
	s := New(fc, rec.fire, logger.Discard())

	s.RescheduleNext([]model.Alarm{alarm("a", time.Minute, true)})
	stale := s.gen
	s.RescheduleNext([]model.Alarm{alarm("b", time.Hour, true)})

	// a callback from the replaced timer that slipped past Stop
	s.elapsed(stale)
	assert.Empty(t, rec.ids())
	got, ok := s.Armed()
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)
}
