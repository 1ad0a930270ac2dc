// Package firmware analyzes captured flash images: digests, entropy,
// printable strings, vector-table sanity, and Intel HEX conversion. Every
// function is read-only over the buffer it is given.
package firmware

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"math"
)

// Report aggregates everything the analyzer derives from one image. It
// marshals directly into the dump metadata side-car.
type Report struct {
	Size       int         `json:"size"`
	MD5        string      `json:"md5"`
	SHA256     string      `json:"sha256"`
	Entropy    float64     `json:"entropy_bits_per_byte"`
	Assessment string      `json:"assessment"`
	Vectors    VectorCheck `json:"vectors"`
	Notable    []StringHit `json:"notable_strings,omitempty"`
}

const maxNotable = 40

// Analyze runs every read-only analysis over data.
func Analyze(data []byte) *Report {
	md5sum, sha := Digests(data)
	ent := Entropy(data)
	r := &Report{
		Size:       len(data),
		MD5:        md5sum,
		SHA256:     sha,
		Entropy:    ent,
		Assessment: AssessEntropy(ent),
		Vectors:    CheckVectors(data),
		Notable:    FilterKeywords(PrintableStrings(data, MinStringLength), DefaultKeywords),
	}
	if len(r.Notable) > maxNotable {
		r.Notable = r.Notable[:maxNotable]
	}
	return r
}

// Digests returns the MD5 and SHA-256 hex digests of data, the pairing
// recorded for every capture.
func Digests(data []byte) (md5hex, sha256hex string) {
	m := md5.Sum(data)
	s := sha256.Sum256(data)
	return hex.EncodeToString(m[:]), hex.EncodeToString(s[:])
}

// Entropy computes Shannon entropy in bits per byte.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var hist [256]int
	for _, b := range data {
		hist[b]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, c := range hist {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Entropy thresholds separating blank, plausible firmware, and compressed
// or encrypted content.
const (
	EntropyLowWater  = 1.0
	EntropyHighWater = 7.5
)

// AssessEntropy labels an entropy value the way first-pass triage would.
func AssessEntropy(bits float64) string {
	switch {
	case bits < EntropyLowWater:
		return "very low entropy: likely blank or corrupt"
	case bits > EntropyHighWater:
		return "very high entropy: likely compressed or encrypted"
	default:
		return "plausible code and data"
	}
}
