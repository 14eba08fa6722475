package hal

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestSquareWave(t *testing.T) {
	wave := squareWave()

	// one frame of samples, alternating half-periods around the midpoint
	assert.Equal(t, audioFreq/60, len(wave))

	period := audioFreq / beepFreq
	assert.Equal(t, byte(0x80+0x20), wave[0])
	assert.Equal(t, byte(0x80-0x20), wave[period/2])
	assert.Equal(t, byte(0x80+0x20), wave[period])
}
