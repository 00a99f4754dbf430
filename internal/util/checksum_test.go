package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeChecksumIsDeterministic(t *testing.T) {
	data := []byte("catch-up segment")
	assert.Equal(t, ComputeChecksum(data), ComputeChecksum(data))
}

func TestComputeChecksumDiffersOnDifferentData(t *testing.T) {
	assert.NotEqual(t, ComputeChecksum([]byte("a")), ComputeChecksum([]byte("b")))
}

func TestValidateChecksum(t *testing.T) {
	data := []byte("segment")
	sum := ComputeChecksum(data)

	assert.True(t, ValidateChecksum(data, sum))
	assert.False(t, ValidateChecksum(data, sum+1))
}

func TestAppendAndValidateAndStripChecksum(t *testing.T) {
	data := []byte("some entries serialized")
	withSum := AppendChecksum(data)

	stripped, ok := ValidateAndStripChecksum(withSum)
	assert.True(t, ok)
	assert.Equal(t, data, stripped)
}

func TestValidateAndStripChecksumDetectsCorruption(t *testing.T) {
	data := []byte("some entries serialized")
	withSum := AppendChecksum(data)
	withSum[0] ^= 0xFF

	_, ok := ValidateAndStripChecksum(withSum)
	assert.False(t, ok)
}

func TestValidateAndStripChecksumRejectsShortInput(t *testing.T) {
	_, ok := ValidateAndStripChecksum([]byte{1, 2, 3})
	assert.False(t, ok)
}
