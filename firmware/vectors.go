package firmware

import "encoding/binary"

// Cortex-M address windows for the controller family: SRAM at the standard
// 0x20000000 base, application flash at 0.
const (
	ramBase    = 0x2000_0000
	ramLimit   = 0x2000_8000
	flashLimit = 0x0004_0000
)

// VectorCheck is the result of sanity-checking the image's first two
// vector-table entries.
type VectorCheck struct {
	StackPointer uint32 `json:"stack_pointer"`
	ResetVector  uint32 `json:"reset_vector"`
	StackValid   bool   `json:"stack_valid"`
	ResetValid   bool   `json:"reset_valid"`
}

// Plausible reports whether both entries look like a real image.
func (v VectorCheck) Plausible() bool {
	return v.StackValid && v.ResetValid
}

// CheckVectors reads the little-endian initial stack pointer and reset
// vector and checks them against the family's RAM and flash windows. A
// real reset vector carries the Thumb bit.
func CheckVectors(data []byte) VectorCheck {
	if len(data) < 8 {
		return VectorCheck{}
	}
	sp := binary.LittleEndian.Uint32(data[0:4])
	rv := binary.LittleEndian.Uint32(data[4:8])
	return VectorCheck{
		StackPointer: sp,
		ResetVector:  rv,
		StackValid:   sp > ramBase && sp <= ramLimit && sp%4 == 0,
		ResetValid:   rv&1 == 1 && rv > 1 && rv < flashLimit,
	}
}
