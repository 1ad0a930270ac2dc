package firmware_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diobyte/MSIInovMysticLightDumper/firmware"
)

func TestIntelHexRoundTrip(t *testing.T) {
	// full flash extent, crossing the 64 KiB record boundary
	data := make([]byte, 0x20000)
	for i := range data {
		data[i] = byte(i*11 + 3)
	}

	var buf bytes.Buffer
	require.NoError(t, firmware.WriteIntelHex(&buf, 0, data))
	out := buf.String()
	assert.Contains(t, out, ":020000040001F9", "extended linear address record for the second 64 KiB")
	assert.Contains(t, out, ":00000001FF")

	base, back, err := firmware.ReadIntelHex(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), base)
	assert.Equal(t, data, back)
}

func TestIntelHexRoundTripUnalignedBase(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i + 1)
	}

	var buf bytes.Buffer
	require.NoError(t, firmware.WriteIntelHex(&buf, 0x100, data))

	base, back, err := firmware.ReadIntelHex(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), base)
	assert.Equal(t, data, back)
}

func TestReadIntelHexFlattensGaps(t *testing.T) {
	// two segments with a 12-byte hole between them
	in := strings.Join([]string{
		":040000001122334452",
		":04001000AABBCCDDDE",
		":00000001FF",
	}, "\n")

	base, data, err := firmware.ReadIntelHex(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), base)
	require.Len(t, data, 20)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, data[0:4])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 12), data[4:16])
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, data[16:20])
}

func TestReadIntelHexRejectsEmpty(t *testing.T) {
	_, _, err := firmware.ReadIntelHex(strings.NewReader(":00000001FF\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestReadIntelHexRejectsGarbage(t *testing.T) {
	_, _, err := firmware.ReadIntelHex(strings.NewReader("not a hex file"))
	assert.Error(t, err)
}
