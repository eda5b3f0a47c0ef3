package alarmstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bark-labs/qr-alarm/internal/logger"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/bark-labs/qr-alarm/internal/storage"
	"github.com/bark-labs/qr-alarm/internal/storage/bolt"
	"github.com/bark-labs/qr-alarm/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlarms() []model.Alarm {
	base := time.Date(2026, 10, 16, 7, 30, 0, 0, time.UTC)
	return []model.Alarm{
		{
			ID:      "0192a000-0000-7000-8000-000000000001",
			Time:    base,
			Enabled: true,
			Label:   "Gym",
			Vibrate: true,
			Repeat:  model.Weekdays{false, true, false, true, false, true, false},
			Sound:   model.Sound{URI: "file:///tones/rooster.mp3", Name: "rooster.mp3"},
		},
		{
			ID:      "0192a000-0000-7000-8000-000000000002",
			Time:    base.Add(25*time.Hour + 17*time.Second),
			Enabled: false,
			Sound:   model.Sound{Name: model.DefaultSoundName},
		},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Store{
		"memory": func(t *testing.T) storage.Store { return memory.New() },
		"bolt": func(t *testing.T) storage.Store {
			s, err := bolt.New(filepath.Join(t.TempDir(), "alarms.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(open(t), logger.Discard())
			want := sampleAlarms()

			require.NoError(t, s.Save(ctx, want))
			got := s.Load(ctx)

			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].ID, got[i].ID)
				assert.True(t, want[i].Time.Equal(got[i].Time), "time %d: want %s got %s", i, want[i].Time, got[i].Time)
				assert.Equal(t, want[i].Enabled, got[i].Enabled)
				assert.Equal(t, want[i].Label, got[i].Label)
				assert.Equal(t, want[i].Vibrate, got[i].Vibrate)
				assert.Equal(t, want[i].Repeat, got[i].Repeat)
				assert.Equal(t, want[i].Sound, got[i].Sound)
			}
		})
	}
}

func TestLoad_MissingIsEmpty(t *testing.T) {
	s := New(memory.New(), logger.Discard())
	got := s.Load(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoad_CorruptIsEmpty(t *testing.T) {
	kv := memory.New()
	require.NoError(t, kv.Set(context.Background(), KeyAlarms, `[{"id": 12, "time": "yesterday"`))
	s := New(kv, logger.Discard())
	assert.Empty(t, s.Load(context.Background()))
}

func TestLoad_ClosedStoreIsEmpty(t *testing.T) {
	kv := memory.New()
	s := New(kv, logger.Discard())
	require.NoError(t, s.Save(context.Background(), sampleAlarms()))
	require.NoError(t, kv.Close())
	assert.Empty(t, s.Load(context.Background()))
}

func TestSave_FailureIsWrapped(t *testing.T) {
	kv := memory.New()
	kv.FailWrites = true
	s := New(kv, logger.Discard())
	err := s.Save(context.Background(), sampleAlarms())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestIdentity_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), logger.Discard())

	_, err := s.LoadIdentity(ctx)
	assert.ErrorIs(t, err, ErrIdentityMissing)

	require.NoError(t, s.SaveIdentity(ctx, "alice-171234"))
	token, err := s.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice-171234", token)

	// the identity lives under its own key and does not disturb alarms
	require.NoError(t, s.Save(ctx, sampleAlarms()))
	token, err = s.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice-171234", token)
}
