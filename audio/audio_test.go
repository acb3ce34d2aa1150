package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplesToBytes(t *testing.T) {
	frame := samplesToBytes([]int16{0, 1, -1, 32767, -32768})

	require.Len(t, frame, 10)
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(frame[0:])))
	assert.Equal(t, int16(1), int16(binary.LittleEndian.Uint16(frame[2:])))
	assert.Equal(t, int16(-1), int16(binary.LittleEndian.Uint16(frame[4:])))
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(frame[6:])))
	assert.Equal(t, int16(-32768), int16(binary.LittleEndian.Uint16(frame[8:])))
}

func TestDownmixStereoAveragesChannels(t *testing.T) {
	stereo := make([]byte, 8)
	binary.LittleEndian.PutUint16(stereo[0:], uint16(int16(100)))  // left
	binary.LittleEndian.PutUint16(stereo[2:], uint16(int16(300)))  // right
	binary.LittleEndian.PutUint16(stereo[4:], uint16(int16(-200))) // left
	binary.LittleEndian.PutUint16(stereo[6:], uint16(int16(-400))) // right

	mono := downmixStereo(stereo)

	require.Len(t, mono, 4)
	assert.Equal(t, int16(200), int16(binary.LittleEndian.Uint16(mono[0:])))
	assert.Equal(t, int16(-300), int16(binary.LittleEndian.Uint16(mono[2:])))
}

func TestDownmixStereoDoesNotOverflow(t *testing.T) {
	stereo := make([]byte, 4)
	binary.LittleEndian.PutUint16(stereo[0:], uint16(int16(32767)))
	binary.LittleEndian.PutUint16(stereo[2:], uint16(int16(32767)))

	mono := downmixStereo(stereo)

	require.Len(t, mono, 2)
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(mono)))
}

func TestDownmixStereoEmpty(t *testing.T) {
	assert.Empty(t, downmixStereo(nil))
}
