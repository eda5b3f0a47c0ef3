package identity

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bark-labs/qr-alarm/internal/alarmstore"
	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/logger"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/bark-labs/qr-alarm/internal/scan"
	"github.com/bark-labs/qr-alarm/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	created   []string
	revoked   []string
	createErr error
	revokeErr error
}

func (f *fakeRegistrar) CreateProfile(_ context.Context, name, code string) (*model.Profile, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, code)
	return &model.Profile{Name: name, QRCode: code}, nil
}

func (f *fakeRegistrar) RevokeProfile(_ context.Context, code string) error {
	f.revoked = append(f.revoked, code)
	return f.revokeErr
}

var now = time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC)

func newBinding(reg Registrar) (*Binding, *clock.Fake) {
	c := clock.NewFake(now)
	store := alarmstore.New(memory.New(), logger.Discard())
	return New(store, reg, c, logger.Discard()), c
}

func TestToken(t *testing.T) {
	assert.Equal(t, "alice-1792098000000", Token("alice", now))
	assert.Equal(t, "Mary-Ann-1792098000000", Token("  Mary Ann! ", now))

	random := Token("   ", now)
	assert.Len(t, random, 36)
	assert.NotEqual(t, random, Token("", now))
}

func TestGenerate_RegistersAndBinds(t *testing.T) {
	reg := &fakeRegistrar{}
	b, _ := newBinding(reg)

	token, err := b.Generate(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "alice-"))
	assert.Equal(t, []string{token}, reg.created)
	assert.Empty(t, reg.revoked)

	current, err := b.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, current)
}

func TestGenerate_RevokesPrevious(t *testing.T) {
	reg := &fakeRegistrar{revokeErr: errors.New("offline")}
	b, c := newBinding(reg)

	first, err := b.Generate(context.Background(), "alice")
	require.NoError(t, err)
	c.Advance(time.Second)
	second, err := b.Generate(context.Background(), "alice")
	require.NoError(t, err, "a failed revoke must not block regeneration")

	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{first}, reg.revoked)

	current, err := b.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, current)
}

func TestGenerate_RegistrationFailureKeepsOld(t *testing.T) {
	reg := &fakeRegistrar{}
	b, c := newBinding(reg)
	first, err := b.Generate(context.Background(), "alice")
	require.NoError(t, err)

	reg.createErr = errors.New("backend down")
	c.Advance(time.Second)
	_, err = b.Generate(context.Background(), "alice")
	require.Error(t, err)

	current, err := b.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, current)
}

func TestGenerate_Offline(t *testing.T) {
	b, _ := newBinding(nil)
	token, err := b.Generate(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "bob-"))
}

func TestCurrent_Missing(t *testing.T) {
	b, _ := newBinding(nil)
	_, err := b.Current(context.Background())
	assert.ErrorIs(t, err, ErrIdentityMissing)

	_, err = b.Present(context.Background(), 128)
	assert.ErrorIs(t, err, ErrIdentityMissing)
}

func TestPresent_DecodesToToken(t *testing.T) {
	b, _ := newBinding(nil)
	token, err := b.Generate(context.Background(), "alice")
	require.NoError(t, err)

	png, err := b.Present(context.Background(), 256)
	require.NoError(t, err)

	decoded, err := scan.ImageDecoder{}.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, token, decoded)

	text, err := b.PresentTerminal(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
