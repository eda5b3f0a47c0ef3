package alarmstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/bark-labs/qr-alarm/internal/storage"
)

// Keys under which the daemon persists its state.
const (
	KeyAlarms   = "alarms.v1"
	KeyIdentity = "identity.qr"
)

var (
	// ErrStorageUnavailable wraps any failure of the underlying store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrIdentityMissing means no QR identity has been bound yet.
	ErrIdentityMissing = errors.New("no identity bound")
)

// AlarmStore owns the persisted alarm collection and the bound identity.
type AlarmStore struct {
	kv     storage.Store
	logger *slog.Logger
}

// New wraps a key-value store.
func New(kv storage.Store, logger *slog.Logger) *AlarmStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlarmStore{kv: kv, logger: logger.With("component", "alarmstore")}
}

// Load returns the persisted alarms in stored order. Missing or unreadable
// data yields an empty slice.
func (s *AlarmStore) Load(ctx context.Context) []model.Alarm {
	raw, err := s.kv.Get(ctx, KeyAlarms)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("load alarms failed", "error", err)
		}
		return []model.Alarm{}
	}
	if strings.TrimSpace(raw) == "" {
		return []model.Alarm{}
	}
	var alarms []model.Alarm
	if err := json.Unmarshal([]byte(raw), &alarms); err != nil {
		s.logger.Warn("discarding corrupt alarm data", "error", err)
		return []model.Alarm{}
	}
	if alarms == nil {
		alarms = []model.Alarm{}
	}
	return alarms
}

// Save replaces the persisted collection. Failures are returned wrapped in
// ErrStorageUnavailable; callers treat them as best-effort.
func (s *AlarmStore) Save(ctx context.Context, alarms []model.Alarm) error {
	if alarms == nil {
		alarms = []model.Alarm{}
	}
	payload, err := json.Marshal(alarms)
	if err != nil {
		return fmt.Errorf("%w: encode alarms: %v", ErrStorageUnavailable, err)
	}
	if err := s.kv.Set(ctx, KeyAlarms, string(payload)); err != nil {
		return fmt.Errorf("%w: save alarms: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// SaveIdentity persists the bound QR token.
func (s *AlarmStore) SaveIdentity(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, KeyIdentity, token); err != nil {
		return fmt.Errorf("%w: save identity: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// LoadIdentity returns the bound QR token, ErrIdentityMissing when none is
// bound, or ErrStorageUnavailable when the store cannot be read.
func (s *AlarmStore) LoadIdentity(ctx context.Context) (string, error) {
	token, err := s.kv.Get(ctx, KeyIdentity)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrIdentityMissing
		}
		return "", fmt.Errorf("%w: load identity: %v", ErrStorageUnavailable, err)
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrIdentityMissing
	}
	return token, nil
}
