package capability

import (
	"runtime"
	"testing"

	"github.com/bark-labs/qr-alarm/internal/logger"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPlayer_StartStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	p := NewCommandPlayer("sleep 5 {uri}", logger.Discard())
	require.NoError(t, p.Start(model.Sound{URI: "", Name: "Default"}))
	assert.True(t, p.Playing())

	require.NoError(t, p.Stop())
	assert.False(t, p.Playing())

	// stopping twice is harmless
	require.NoError(t, p.Stop())
}

func TestCommandPlayer_EmptyTemplate(t *testing.T) {
	p := NewCommandPlayer("", logger.Discard())
	require.NoError(t, p.Start(model.Sound{URI: "file:///tone.mp3"}))
	assert.False(t, p.Playing())
}

func TestNop(t *testing.T) {
	var pl Player = Nop{}
	var v Vibrator = NopVibrator{}
	assert.NoError(t, pl.Start(model.Sound{}))
	assert.NoError(t, pl.Stop())
	assert.NoError(t, v.Start())
	assert.NoError(t, v.Stop())
}
