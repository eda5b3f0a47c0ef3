package barkclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Client pushes alarm notifications through a Bark server.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// Message is a plaintext push.
type Message struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Group     string `json:"group,omitempty"`
	Sound     string `json:"sound,omitempty"`
	Level     string `json:"level,omitempty"`
	Call      string `json:"call,omitempty"`
}

// CommonResponse models Bark server standard response.
type CommonResponse[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Data      T      `json:"data"`
}

// StatusError reports a non-200 HTTP answer from the Bark server.
type StatusError struct {
	Op     string
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bark %s: http status %s", e.Op, e.Status)
}

// New creates a Bark API client.
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

// Ping checks Bark server health.
func (c *Client) Ping(ctx context.Context) (*CommonResponse[map[string]any], error) {
	return call[map[string]any](ctx, c, "ping", http.MethodGet, "/ping", nil)
}

// Push sends a plaintext notification through /push.
func (c *Client) Push(ctx context.Context, msg Message) (*CommonResponse[struct{}], error) {
	if strings.TrimSpace(msg.DeviceKey) == "" {
		return nil, fmt.Errorf("device key is required")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return call[struct{}](ctx, c, "push", http.MethodPost, "/push", body)
}

// SendEncryptedPush posts an AES ciphertext to the device's endpoint.
func (c *Client) SendEncryptedPush(ctx context.Context, deviceKey, ciphertext, iv string) (*CommonResponse[struct{}], error) {
	body, err := json.Marshal(map[string]string{
		"ciphertext": ciphertext,
		"iv":         iv,
	})
	if err != nil {
		return nil, err
	}
	return call[struct{}](ctx, c, "encrypted push", http.MethodPost, "/"+deviceKey, body)
}

func call[T any](ctx context.Context, c *Client, op, method, p string, body []byte) (*CommonResponse[T], error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(p), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("API-TOKEN", c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: op, Status: resp.Status}
	}
	var payload CommonResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("bark %s: decode response: %w", op, err)
	}
	return &payload, nil
}

func (c *Client) resolve(p string) string {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)
	return u.String()
}
