package firmware

import (
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
)

// WriteIntelHex renders data as Intel HEX records with 16-byte lines,
// placed at the given base address.
func WriteIntelHex(w io.Writer, base uint32, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(base, data); err != nil {
		return fmt.Errorf("hex layout: %w", err)
	}
	if err := mem.DumpIntelHex(w, 16); err != nil {
		return fmt.Errorf("hex dump: %w", err)
	}
	return nil
}

// ReadIntelHex parses an Intel HEX stream and flattens its segments into a
// single buffer. Gaps between segments are filled with 0xFF, matching
// erased flash. Returns the lowest segment address as the image base.
func ReadIntelHex(r io.Reader) (uint32, []byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return 0, nil, fmt.Errorf("hex parse: %w", err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return 0, nil, fmt.Errorf("hex file contains no data")
	}
	base := segments[0].Address
	end := segments[0].Address + uint32(len(segments[0].Data))
	for _, seg := range segments[1:] {
		if seg.Address < base {
			base = seg.Address
		}
		if segEnd := seg.Address + uint32(len(seg.Data)); segEnd > end {
			end = segEnd
		}
	}
	data := make([]byte, end-base)
	for i := range data {
		data[i] = 0xFF
	}
	for _, seg := range segments {
		copy(data[seg.Address-base:], seg.Data)
	}
	return base, data, nil
}
