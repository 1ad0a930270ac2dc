package nuvoton_isp

import "encoding/binary"

// ErrorSentinel is the fixed two-byte prefix the bootloader answers with
// when it rejects a command outright. Its exact meaning is not documented
// anywhere; observed behavior says "rejected", nothing finer.
var ErrorSentinel = [2]byte{0xFB, 0x4F}

// RespClass partitions every transport answer into exactly one outcome.
type RespClass int

const (
	// RespTimeout means no bytes arrived before the deadline.
	RespTimeout RespClass = iota
	// RespData is a payload-bearing response.
	RespData
	// RespError is the rejection sentinel.
	RespError
)

func (c RespClass) String() string {
	switch c {
	case RespTimeout:
		return "timeout"
	case RespData:
		return "data"
	case RespError:
		return "error sentinel"
	}
	return "unknown"
}

// IsErrorSentinel reports whether resp starts with the rejection marker.
func IsErrorSentinel(resp []byte) bool {
	return len(resp) >= 2 && resp[0] == ErrorSentinel[0] && resp[1] == ErrorSentinel[1]
}

// ClassifyResponse maps a raw transport answer onto its outcome class.
// A nil or empty response is a timeout.
func ClassifyResponse(resp []byte) RespClass {
	if len(resp) == 0 {
		return RespTimeout
	}
	if IsErrorSentinel(resp) {
		return RespError
	}
	return RespData
}

// ResponseLayout fixes where chunk payload starts inside a response and how
// many bytes each chunk can carry. Firmware revisions disagree on the
// header depth, so the layout is detected once per job from a probe read
// and held for the job's duration.
type ResponseLayout struct {
	DataOffset int
	ChunkSize  int
}

// DefaultDataOffset is where payload starts on every revision seen so far.
const DefaultDataOffset = 9

// responseDataOffsets are the candidate payload starts, scanned in
// ascending order. Offsets 0-1 are the status/sentinel header. The list
// skips positions whose 4-byte sample would straddle the known
// header/payload boundary at 9 and so false-trigger on header echo.
var responseDataOffsets = []int{4, 9, 12, 16}

// DetectResponseLayout picks the payload offset for a job from its first
// data response: the first candidate whose 4-byte sample is neither all
// 0x00 nor all 0xFF wins, and a degenerate probe falls back to
// DefaultDataOffset. Best-effort by nature; an unseen revision can defeat
// it.
func DetectResponseLayout(probe []byte) ResponseLayout {
	for _, off := range responseDataOffsets {
		if off+4 > len(probe) {
			break
		}
		if degenerate(probe[off : off+4]) {
			continue
		}
		return layoutAt(off, len(probe))
	}
	return layoutAt(DefaultDataOffset, len(probe))
}

func layoutAt(off, respLen int) ResponseLayout {
	width := ReadChunkMax
	if respLen > off && respLen-off < width {
		width = respLen - off
	}
	return ResponseLayout{DataOffset: off, ChunkSize: width}
}

func degenerate(s []byte) bool {
	zero, ff := true, true
	for _, b := range s {
		if b != 0x00 {
			zero = false
		}
		if b != 0xFF {
			ff = false
		}
	}
	return zero || ff
}

// ConfigWords holds the CONFIG0/CONFIG1 flash words and where in the
// response they were found.
type ConfigWords struct {
	Config0 uint32
	Config1 uint32
	Offset  int
}

// ReadLocked reports whether CONFIG0 bit 1 — the flash lock bit, active
// low — marks the part as read-protected.
func (c ConfigWords) ReadLocked() bool {
	return (c.Config0>>1)&1 == 0
}

// configOffsets are the candidate positions of the CONFIG word pair,
// chosen like responseDataOffsets to avoid straddling the header boundary.
var configOffsets = []int{4, 9, 12, 16}

// ParseReadConfigResult scans for the CONFIG word pair. A CONFIG0 reading
// all-zero or all-ones is header echo, padding or erased config, none of
// which carry a lock bit; a zero CONFIG1 marks response padding. CONFIG1 of
// all-ones stays valid because parts without data flash ship exactly that.
func ParseReadConfigResult(resp []byte) (ConfigWords, bool) {
	for _, off := range configOffsets {
		if off+8 > len(resp) {
			break
		}
		c0 := binary.LittleEndian.Uint32(resp[off:])
		c1 := binary.LittleEndian.Uint32(resp[off+4:])
		if c0 == 0 || c0 == 0xFFFFFFFF || c1 == 0 {
			continue
		}
		return ConfigWords{Config0: c0, Config1: c1, Offset: off}, true
	}
	return ConfigWords{}, false
}

// ParseVersionResult extracts the major.minor version bytes that follow the
// two status bytes.
func ParseVersionResult(resp []byte) (major, minor byte, ok bool) {
	if len(resp) < 4 {
		return 0, 0, false
	}
	return resp[2], resp[3], true
}

// ParseChecksumResult reads the little-endian checksum word the application
// firmware reports after the two status bytes.
func ParseChecksumResult(resp []byte) (uint32, bool) {
	if len(resp) < 6 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(resp[2:]), true
}

// deviceIDOffsets are the candidate positions of the part id word.
var deviceIDOffsets = []int{2, 4, 8, 9}

// ParseDeviceIDResult scans for a part identification word: the first
// little-endian 32-bit value that is neither zero nor all-ones.
func ParseDeviceIDResult(resp []byte) (uint32, bool) {
	for _, off := range deviceIDOffsets {
		if off+4 > len(resp) {
			continue
		}
		v := binary.LittleEndian.Uint32(resp[off:])
		if v != 0 && v != 0xFFFFFFFF {
			return v, true
		}
	}
	return 0, false
}
