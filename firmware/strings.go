package firmware

import "strings"

// MinStringLength is the shortest printable run worth reporting.
const MinStringLength = 4

// StringHit is one printable-ASCII run with its exact start offset.
type StringHit struct {
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

// DefaultKeywords highlight strings that usually identify firmware:
// vendor, protocol, and version markers.
var DefaultKeywords = []string{
	"usb", "hid", "msi", "mystic", "nuvoton", "isp",
	"led", "rgb", "ver", "boot", "build", "serial",
}

// PrintableStrings extracts runs of at least minLen printable ASCII bytes
// (0x20-0x7E) together with their start offsets.
func PrintableStrings(data []byte, minLen int) []StringHit {
	if minLen < 1 {
		minLen = 1
	}
	var hits []StringHit
	start := -1
	for i, b := range data {
		if b >= 0x20 && b <= 0x7E {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			hits = append(hits, StringHit{Offset: start, Text: string(data[start:i])})
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= minLen {
		hits = append(hits, StringHit{Offset: start, Text: string(data[start:])})
	}
	return hits
}

// FilterKeywords returns the hits whose text contains any keyword,
// case-insensitively.
func FilterKeywords(hits []StringHit, keywords []string) []StringHit {
	var out []StringHit
	for _, h := range hits {
		lower := strings.ToLower(h.Text)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}
