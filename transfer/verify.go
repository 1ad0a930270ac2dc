package transfer

import (
	"bytes"
	"context"
	"fmt"
)

// VerifiedDump reads the range twice into independent buffers and returns
// one of them only when they agree byte for byte. Disagreement keeps both
// buffers inside the returned VerifyError; they are never merged.
func (e *Engine) VerifiedDump(ctx context.Context, start, size uint32, opcode byte) ([]byte, error) {
	e.log.Info("verification pass 1 of 2")
	first, err := e.DumpRange(ctx, start, size, opcode)
	if err != nil {
		return first, fmt.Errorf("first read pass: %w", err)
	}
	e.log.Info("verification pass 2 of 2")
	second, err := e.DumpRange(ctx, start, size, opcode)
	if err != nil {
		return first, fmt.Errorf("second read pass: %w", err)
	}
	if bytes.Equal(first, second) {
		e.log.Info("both read passes agree")
		return first, nil
	}
	diffs, total := diffBuffers(first, second)
	e.log.WithField("mismatches", total).Error("read passes disagree")
	return nil, &VerifyError{Total: total, Diffs: diffs, First: first, Second: second}
}

// diffBuffers enumerates differing offsets over the common prefix of a and
// b, reporting at most MaxReportedDiffs entries plus the exact total.
func diffBuffers(a, b []byte) ([]Diff, int) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var diffs []Diff
	total := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			continue
		}
		total++
		if len(diffs) < MaxReportedDiffs {
			diffs = append(diffs, Diff{Offset: uint32(i), First: a[i], Second: b[i]})
		}
	}
	return diffs, total
}
