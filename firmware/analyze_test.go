package firmware_test

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diobyte/MSIInovMysticLightDumper/firmware"
)

func TestEntropyBounds(t *testing.T) {
	assert.InDelta(t, 0.0, firmware.Entropy(make([]byte, 4096)), 0.0001)
	assert.InDelta(t, 0.0, firmware.Entropy(nil), 0.0001)

	r := rand.New(rand.NewSource(42))
	buf := make([]byte, 64*1024)
	_, err := r.Read(buf)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, firmware.Entropy(buf), 0.05)
}

func TestAssessEntropy(t *testing.T) {
	tests := []struct {
		bits float64
		want string
	}{
		{0.0, "very low entropy: likely blank or corrupt"},
		{0.99, "very low entropy: likely blank or corrupt"},
		{1.0, "plausible code and data"},
		{6.2, "plausible code and data"},
		{7.5, "plausible code and data"},
		{7.51, "very high entropy: likely compressed or encrypted"},
		{8.0, "very high entropy: likely compressed or encrypted"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, firmware.AssessEntropy(tt.bits), "bits=%v", tt.bits)
	}
}

func TestDigestsKnownVectors(t *testing.T) {
	md5sum, sha := firmware.Digests([]byte("abc"))
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", md5sum)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sha)

	md5sum, sha = firmware.Digests(nil)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", md5sum)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sha)
}

func TestAnalyze(t *testing.T) {
	img := make([]byte, 256)
	binary.LittleEndian.PutUint32(img[0:], 0x20004000)
	binary.LittleEndian.PutUint32(img[4:], 0x00000141)
	copy(img[16:], "MSI Mystic Light v1.2")
	for i := 64; i < len(img); i++ {
		img[i] = byte(i * 7)
	}

	r := firmware.Analyze(img)
	assert.Equal(t, 256, r.Size)
	assert.Len(t, r.MD5, 32)
	assert.Len(t, r.SHA256, 64)
	assert.Equal(t, firmware.AssessEntropy(r.Entropy), r.Assessment)
	assert.True(t, r.Vectors.Plausible())

	require.NotEmpty(t, r.Notable)
	assert.Equal(t, 16, r.Notable[0].Offset)
	assert.Contains(t, r.Notable[0].Text, "Mystic")
}
