package verifyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bark-labs/qr-alarm/internal/model"
)

// Client talks to the verification backend on behalf of the signed-in user.
type Client struct {
	baseURL *url.URL
	http    *http.Client

	mu       sync.RWMutex
	token    string
	email    string
	password string
}

const loginPath = "/auth/login"

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("verifier http status %d", e.Code)
	}
	return fmt.Sprintf("verifier http status %d: %s", e.Code, e.Message)
}

// New creates a verification client. token may be empty until Login.
func New(rawURL, token string, timeout time.Duration) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("base url must include scheme")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return &Client{
		baseURL: parsed,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// SetToken replaces the bearer credential.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a session and keeps its token. The
// credentials are kept too, so later calls can sign in again when the
// session is missing or expired.
func (c *Client) Login(ctx context.Context, email, password string) (*model.SessionResponse, error) {
	c.mu.Lock()
	c.email, c.password = email, password
	c.mu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) (*model.SessionResponse, error) {
	c.mu.RLock()
	creds := model.Credentials{Email: c.email, Password: c.password}
	c.mu.RUnlock()

	var session model.SessionResponse
	if err := c.do(ctx, http.MethodPost, loginPath, creds, &session); err != nil {
		return nil, err
	}
	c.SetToken(session.Token)
	return &session, nil
}

func (c *Client) hasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email != ""
}

// CreateProfile registers a QR code for the signed-in account.
func (c *Client) CreateProfile(ctx context.Context, name, code string) (*model.Profile, error) {
	var profile model.Profile
	if err := c.authed(ctx, http.MethodPost, "/profiles", model.ProfileRequest{Name: name, QRCode: code}, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// RevokeProfile removes a previously registered QR code.
func (c *Client) RevokeProfile(ctx context.Context, code string) error {
	return c.authed(ctx, http.MethodPost, "/profiles/revoke", model.VerifyRequest{QRCode: code}, nil)
}

// ConfirmQR asks the backend whether code belongs to an authorized profile.
func (c *Client) ConfirmQR(ctx context.Context, code string) (*model.VerifyResponse, error) {
	var resp model.VerifyResponse
	if err := c.authed(ctx, http.MethodPost, "/functions/verify-qr", model.VerifyRequest{QRCode: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// authed signs in first when there is no session, and signs in once more
// when the backend answers 401.
func (c *Client) authed(ctx context.Context, method, p string, in, out any) error {
	if !c.hasCredentials() {
		return c.do(ctx, method, p, in, out)
	}
	if c.Token() == "" {
		if _, err := c.login(ctx); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
	}
	err := c.do(ctx, method, p, in, out)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		return err
	}
	if _, lerr := c.login(ctx); lerr != nil {
		return fmt.Errorf("sign in again: %w", lerr)
	}
	return c.do(ctx, method, p, in, out)
}

func (c *Client) do(ctx context.Context, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(p), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(r io.Reader) string {
	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || json.Unmarshal(raw, &payload) != nil {
		return strings.TrimSpace(string(raw))
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Reason
}

func (c *Client) resolve(p string) string {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)
	return u.String()
}
