package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/bark-labs/qr-alarm/internal/alarmstore"
	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// ErrIdentityMissing means no QR identity has been generated yet.
var ErrIdentityMissing = alarmstore.ErrIdentityMissing

// Store persists the bound token.
type Store interface {
	LoadIdentity(ctx context.Context) (string, error)
	SaveIdentity(ctx context.Context, token string) error
}

// Registrar records tokens in the backend's profile table.
type Registrar interface {
	CreateProfile(ctx context.Context, name, code string) (*model.Profile, error)
	RevokeProfile(ctx context.Context, code string) error
}

// Binding generates and presents the QR token that dismisses this device's
// alarms.
type Binding struct {
	store     Store
	registrar Registrar
	clock     clock.Clock
	logger    *slog.Logger
}

// New builds a Binding. registrar may be nil for offline setups.
func New(store Store, registrar Registrar, c clock.Clock, logger *slog.Logger) *Binding {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binding{store: store, registrar: registrar, clock: c, logger: logger.With("component", "identity")}
}

// Token derives a token from a human-chosen seed and the creation instant,
// e.g. "alice-1760512345678". An empty seed yields a random identifier.
func Token(seed string, now time.Time) string {
	s := slug(seed)
	if s == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%d", s, now.UnixMilli())
}

// Generate creates a fresh token, registers it with the backend, revokes the
// previous one and binds the new one locally.
func (b *Binding) Generate(ctx context.Context, seed string) (string, error) {
	token := Token(seed, b.clock.Now())
	name := strings.TrimSpace(seed)
	if name == "" {
		name = token
	}

	previous, err := b.store.LoadIdentity(ctx)
	if err != nil && !errors.Is(err, ErrIdentityMissing) {
		b.logger.Warn("previous identity unreadable", "error", err)
	}

	if b.registrar != nil {
		if _, err := b.registrar.CreateProfile(ctx, name, token); err != nil {
			return "", fmt.Errorf("register identity: %w", err)
		}
	}
	if err := b.store.SaveIdentity(ctx, token); err != nil {
		return "", err
	}
	if b.registrar != nil && previous != "" && previous != token {
		if err := b.registrar.RevokeProfile(ctx, previous); err != nil {
			b.logger.Warn("revoke previous identity failed", "error", err)
		}
	}
	b.logger.Info("identity bound", "name", name)
	return token, nil
}

// Current returns the bound token.
func (b *Binding) Current(ctx context.Context) (string, error) {
	return b.store.LoadIdentity(ctx)
}

// Present renders the bound token as a PNG QR code of size×size pixels.
func (b *Binding) Present(ctx context.Context, size int) ([]byte, error) {
	token, err := b.Current(ctx)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(token, qrcode.Medium, size)
}

// PresentTerminal renders the bound token as a QR code made of block
// characters for printing to a terminal.
func (b *Binding) PresentTerminal(ctx context.Context) (string, error) {
	token, err := b.Current(ctx)
	if err != nil {
		return "", err
	}
	q, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

func slug(seed string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(seed) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
