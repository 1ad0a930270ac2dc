package firmware_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Diobyte/MSIInovMysticLightDumper/firmware"
)

func vectorImage(sp, rv uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], sp)
	binary.LittleEndian.PutUint32(b[4:], rv)
	return b
}

func TestCheckVectors(t *testing.T) {
	tests := []struct {
		name   string
		sp, rv uint32
		spOK   bool
		rvOK   bool
	}{
		{"typical image", 0x20004000, 0x00000141, true, true},
		{"stack at top of ram", 0x20008000, 0x00000199, true, true},
		{"stack outside ram", 0x12345678, 0x00000141, false, true},
		{"stack at ram base", 0x20000000, 0x00000141, false, true},
		{"unaligned stack", 0x20004002, 0x00000141, false, true},
		{"reset without thumb bit", 0x20004000, 0x00000140, true, false},
		{"reset beyond flash", 0x20004000, 0x00080001, true, false},
		{"erased part", 0xFFFFFFFF, 0xFFFFFFFF, false, false},
		{"blank part", 0x00000000, 0x00000000, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := firmware.CheckVectors(vectorImage(tt.sp, tt.rv))
			assert.Equal(t, tt.sp, v.StackPointer)
			assert.Equal(t, tt.rv, v.ResetVector)
			assert.Equal(t, tt.spOK, v.StackValid)
			assert.Equal(t, tt.rvOK, v.ResetValid)
			assert.Equal(t, tt.spOK && tt.rvOK, v.Plausible())
		})
	}
}

func TestCheckVectorsShortBuffer(t *testing.T) {
	assert.Equal(t, firmware.VectorCheck{}, firmware.CheckVectors([]byte{0x00, 0x40, 0x00}))
	assert.Equal(t, firmware.VectorCheck{}, firmware.CheckVectors(nil))
}
