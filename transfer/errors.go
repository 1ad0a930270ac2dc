package transfer

import "fmt"

// ReadProtectedError reports structural read rejection: the part answered
// the error sentinel rather than data, which on locked flash is persistent,
// not noise.
type ReadProtectedError struct {
	Addr       uint32
	Rejections int
}

func (e *ReadProtectedError) Error() string {
	return fmt.Sprintf("flash read rejected at %#06x after %d rejections: part is likely read-protected", e.Addr, e.Rejections)
}

// ReadAbortedError reports a dump that gave up after too many consecutive
// chunk failures. The bytes collected before the abort are still returned.
type ReadAbortedError struct {
	Addr   uint32
	Errors int
}

func (e *ReadAbortedError) Error() string {
	return fmt.Sprintf("read aborted at %#06x after %d consecutive chunk errors", e.Addr, e.Errors)
}

// WriteError reports a chunk write the device never acknowledged, or
// rejected outright.
type WriteError struct {
	Addr     uint32
	PacketNo uint32
	Attempts int
	Rejected bool
	Err      error
}

func (e *WriteError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("write rejected at %#06x (packet %d)", e.Addr, e.PacketNo)
	}
	if e.Err != nil {
		return fmt.Sprintf("write failed at %#06x (packet %d, attempt %d): %v", e.Addr, e.PacketNo, e.Attempts, e.Err)
	}
	return fmt.Sprintf("write unacknowledged at %#06x (packet %d) after %d attempts", e.Addr, e.PacketNo, e.Attempts)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Diff is one differing byte between two compared buffers.
type Diff struct {
	Offset uint32
	First  byte
	Second byte
}

// MaxReportedDiffs bounds the offsets enumerated inside a VerifyError; the
// exact total is always stated alongside.
const MaxReportedDiffs = 32

// VerifyError reports disagreement between two reads, or between written
// data and its read-back. Both buffers are retained for inspection and
// never merged.
type VerifyError struct {
	Total  int
	Diffs  []Diff
	First  []byte
	Second []byte
}

func (e *VerifyError) Error() string {
	if e.Total == 1 && len(e.Diffs) == 1 {
		d := e.Diffs[0]
		return fmt.Sprintf("verification mismatch: 1 differing byte at %#06x (%#02x vs %#02x)", d.Offset, d.First, d.Second)
	}
	if len(e.Diffs) > 0 {
		return fmt.Sprintf("verification mismatch: %d differing bytes, first at %#06x", e.Total, e.Diffs[0].Offset)
	}
	return fmt.Sprintf("verification mismatch: buffer lengths differ (%d vs %d)", len(e.First), len(e.Second))
}

// BackupInvalidError blocks a flash whose pre-write backup is degenerate
// and therefore useless for recovery.
type BackupInvalidError struct {
	Reason string
}

func (e *BackupInvalidError) Error() string {
	return fmt.Sprintf("backup invalid: %s", e.Reason)
}
