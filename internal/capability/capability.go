// Package capability holds the optional device capabilities the ringing alarm
// drives. Implementations must return quickly; long-running work belongs in a
// goroutine owned by the implementation.
package capability

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bark-labs/qr-alarm/internal/model"
)

// Player loops an alarm sound until stopped.
type Player interface {
	Start(sound model.Sound) error
	Stop() error
}

// Vibrator buzzes until stopped.
type Vibrator interface {
	Start() error
	Stop() error
}

// Nop satisfies Player and Vibrator on platforms without them.
type Nop struct{}

func (Nop) Start(model.Sound) error { return nil }
func (Nop) Stop() error             { return nil }

// NopVibrator is the Vibrator counterpart of Nop.
type NopVibrator struct{}

func (NopVibrator) Start() error { return nil }
func (NopVibrator) Stop() error  { return nil }

// CommandPlayer plays a sound by running an external command, restarting it
// each time it exits until Stop. The template's "{uri}" is replaced with the
// sound URI, e.g. "paplay {uri}".
type CommandPlayer struct {
	template string
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommandPlayer returns a player for the given command template.
func NewCommandPlayer(template string, logger *slog.Logger) *CommandPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPlayer{template: template, logger: logger.With("component", "player")}
}

// Start begins looping playback, replacing anything already playing.
func (p *CommandPlayer) Start(sound model.Sound) error {
	args := strings.Fields(strings.ReplaceAll(p.template, "{uri}", strings.TrimPrefix(sound.URI, "file://")))
	if len(args) == 0 {
		return nil
	}
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		for ctx.Err() == nil {
			cmd := exec.CommandContext(ctx, args[0], args[1:]...)
			if err := cmd.Run(); err != nil && ctx.Err() == nil {
				p.logger.Warn("playback failed", "sound", sound.Name, "error", err)
				// avoid spinning on a command that fails immediately
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}()
	return nil
}

// Stop ends playback and waits for the command to exit.
func (p *CommandPlayer) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Playing reports whether a playback loop is running.
func (p *CommandPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
