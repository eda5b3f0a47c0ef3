package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bark-labs/qr-alarm/internal/alarmstore"
	"github.com/bark-labs/qr-alarm/internal/logger"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/bark-labs/qr-alarm/internal/storage/memory"
	"github.com/bark-labs/qr-alarm/internal/verify"
	"github.com/bark-labs/qr-alarm/internal/verifyclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "profiles.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newServer(t *testing.T) *Server {
	t.Helper()
	store := newStore(t)
	auth, err := NewAuthService(store, "test-secret", time.Hour)
	require.NoError(t, err)
	return NewServer("127.0.0.1:0", store, auth, logger.Discard())
}

// serve runs the backend on a loopback listener and returns its base URL.
func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return "http://" + ln.Addr().String()
}

func TestStore_Profiles(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	alice, err := s.CreateAccount(ctx, " Alice@Example.com ", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", alice.Email)

	_, err = s.CreateAccount(ctx, "alice@example.com", "hash")
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.AccountByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	p, err := s.CreateProfile(ctx, alice.ID, "alice", "alice-171234")
	require.NoError(t, err)

	found, err := s.FindProfile(ctx, alice.ID, "alice-171234")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	assert.Equal(t, "alice", found.Name)

	_, err = s.CreateProfile(ctx, alice.ID, "again", "alice-171234")
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, s.RevokeProfile(ctx, alice.ID, "alice-171234"))
	_, err = s.FindProfile(ctx, alice.ID, "alice-171234")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.RevokeProfile(ctx, alice.ID, "alice-171234"), ErrNotFound)
}

func TestAuth_Tokens(t *testing.T) {
	store := newStore(t)
	auth, err := NewAuthService(store, "test-secret", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = auth.Signup(ctx, model.Credentials{Email: "alice@example.com", Password: "short"})
	require.Error(t, err)

	session, err := auth.Signup(ctx, model.Credentials{Email: "alice@example.com", Password: "correct horse"})
	require.NoError(t, err)

	claims, err := auth.Validate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, claims.Subject)

	_, err = auth.Authenticate(ctx, model.Credentials{Email: "alice@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Authenticate(ctx, model.Credentials{Email: "nobody@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	other, err := NewAuthService(store, "other-secret", time.Hour)
	require.NoError(t, err)
	_, err = other.Validate(session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.Validate(session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewAuthService(store, " ", time.Hour)
	assert.Error(t, err)
}

func TestVerifyQR_RequiresAuth(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/functions/verify-qr", bytes.NewBufferString(`{"qr_code":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyQR_MissingCode(t *testing.T) {
	s := newServer(t)
	session, err := s.auth.Signup(context.Background(), model.Credentials{Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/functions/verify-qr", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.Token)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out model.VerifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "missing_qr", out.Reason)
}

func TestEndToEnd_ClientAgainstBackend(t *testing.T) {
	s := newServer(t)
	base := serve(t, s)
	ctx := context.Background()

	_, err := s.auth.Signup(ctx, model.Credentials{Email: "alice@example.com", Password: "alice-password"})
	require.NoError(t, err)
	_, err = s.auth.Signup(ctx, model.Credentials{Email: "bob@example.com", Password: "bob-password"})
	require.NoError(t, err)

	alice, err := verifyclient.New(base, "", 5*time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return alice.Ping(ctx) == nil }, 2*time.Second, 20*time.Millisecond)

	_, err = alice.Login(ctx, "alice@example.com", "alice-password")
	require.NoError(t, err)
	profile, err := alice.CreateProfile(ctx, "alice", "alice-171234")
	require.NoError(t, err)
	assert.NotEmpty(t, profile.ID)

	resp, err := alice.ConfirmQR(ctx, "alice-171234")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, "alice", resp.Profile.Name)

	// lookups are scoped to the caller
	bob, err := verifyclient.New(base, "", 5*time.Second)
	require.NoError(t, err)
	_, err = bob.Login(ctx, "bob@example.com", "bob-password")
	require.NoError(t, err)
	resp, err = bob.ConfirmQR(ctx, "alice-171234")
	require.NoError(t, err)
	assert.False(t, resp.Valid)

	require.NoError(t, alice.RevokeProfile(ctx, "alice-171234"))
	resp, err = alice.ConfirmQR(ctx, "alice-171234")
	require.NoError(t, err)
	assert.False(t, resp.Valid)

	_, err = alice.Login(ctx, "alice@example.com", "nope")
	var statusErr *verifyclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestEndToEnd_ExpiredSessionSignsInAgain(t *testing.T) {
	s := newServer(t)
	var skew atomic.Int64
	s.auth.now = func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	base := serve(t, s)
	ctx := context.Background()

	_, err := s.auth.Signup(ctx, model.Credentials{Email: "alice@example.com", Password: "alice-password"})
	require.NoError(t, err)

	client, err := verifyclient.New(base, "", 5*time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.Ping(ctx) == nil }, 2*time.Second, 20*time.Millisecond)
	_, err = client.Login(ctx, "alice@example.com", "alice-password")
	require.NoError(t, err)
	_, err = client.CreateProfile(ctx, "alice", "alice-171234")
	require.NoError(t, err)

	repo := alarmstore.New(memory.New(), logger.Discard())
	require.NoError(t, repo.SaveIdentity(ctx, "alice-171234"))
	gateway := verify.NewGateway(repo, client, logger.Discard())

	res, err := gateway.Verify(ctx, "alice-171234")
	require.NoError(t, err)
	require.True(t, res.Authorized)

	// the session issued above is past its one hour lifetime from here on
	skew.Store(int64(2 * time.Hour))
	stale := client.Token()

	res, err = gateway.Verify(ctx, "alice-171234")
	require.NoError(t, err)
	assert.True(t, res.Authorized, "reason %q", res.Reason)
	assert.NotEqual(t, stale, client.Token())
}
