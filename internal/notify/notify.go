package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bark-labs/qr-alarm/internal/barkclient"
	"github.com/bark-labs/qr-alarm/internal/clock"
	"github.com/bark-labs/qr-alarm/internal/crypto"
)

// Group tags every push so the phone can collapse them.
const Group = "qr-alarm"

// Notifier delivers user-visible notifications. Calls never block and give no
// delivery guarantee.
type Notifier interface {
	ScheduleImmediate(title, body string)
	ScheduleDelayed(title, body string, delay time.Duration)
}

// BarkOptions configures a BarkDispatcher.
type BarkOptions struct {
	DeviceKey string
	// EncodeKey and IV enable AES-CBC encrypted pushes when both are set.
	EncodeKey string
	IV        string
	Timeout   time.Duration
}

// BarkDispatcher pushes notifications through a Bark server.
type BarkDispatcher struct {
	client *barkclient.Client
	opts   BarkOptions
	clock  clock.Clock
	logger *slog.Logger
}

// NewBarkDispatcher builds a dispatcher for one device.
func NewBarkDispatcher(client *barkclient.Client, opts BarkOptions, c clock.Clock, logger *slog.Logger) *BarkDispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BarkDispatcher{client: client, opts: opts, clock: c, logger: logger.With("component", "notify")}
}

// ScheduleImmediate sends the notification in the background.
func (d *BarkDispatcher) ScheduleImmediate(title, body string) {
	go d.send(title, body)
}

// ScheduleDelayed sends the notification once delay has elapsed.
func (d *BarkDispatcher) ScheduleDelayed(title, body string, delay time.Duration) {
	d.clock.AfterFunc(delay, func() { d.send(title, body) })
}

func (d *BarkDispatcher) send(title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()

	var (
		resp *barkclient.CommonResponse[struct{}]
		err  error
	)
	if d.encrypted() {
		var ciphertext string
		ciphertext, err = d.encrypt(title, body)
		if err == nil {
			resp, err = d.client.SendEncryptedPush(ctx, d.opts.DeviceKey, ciphertext, d.opts.IV)
		}
	} else {
		resp, err = d.client.Push(ctx, barkclient.Message{
			DeviceKey: d.opts.DeviceKey,
			Title:     title,
			Body:      body,
			Group:     Group,
			Level:     "timeSensitive",
			Call:      "1",
		})
	}
	if err != nil {
		d.logger.Warn("push failed", "title", title, "error", err)
		return
	}
	if resp != nil && resp.Code != 200 {
		d.logger.Warn("push rejected", "title", title, "code", resp.Code, "message", resp.Message)
		return
	}
	d.logger.Debug("push delivered", "title", title)
}

func (d *BarkDispatcher) encrypted() bool {
	return d.opts.EncodeKey != "" && d.opts.IV != ""
}

func (d *BarkDispatcher) encrypt(title, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"title": title,
		"body":  body,
		"group": Group,
		"level": "timeSensitive",
		"call":  "1",
	})
	if err != nil {
		return "", err
	}
	return crypto.EncryptToBase64(payload, []byte(d.opts.EncodeKey), []byte(d.opts.IV))
}

// LogDispatcher only logs; it stands in when no push backend is configured.
type LogDispatcher struct {
	clock  clock.Clock
	logger *slog.Logger
}

// NewLogDispatcher returns a Notifier that writes to the log.
func NewLogDispatcher(c clock.Clock, logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{clock: c, logger: logger.With("component", "notify")}
}

// ScheduleImmediate logs the notification now.
func (d *LogDispatcher) ScheduleImmediate(title, body string) {
	d.logger.Info("notification", "title", title, "body", body)
}

// ScheduleDelayed logs the notification after delay.
func (d *LogDispatcher) ScheduleDelayed(title, body string, delay time.Duration) {
	d.clock.AfterFunc(delay, func() { d.ScheduleImmediate(title, body) })
}
