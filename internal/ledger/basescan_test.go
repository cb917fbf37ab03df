package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransactionHash(t *testing.T) {
	valid := "0x9f2c7e1a4b8d3f6a9c2e5b8d1f4a7c0e3b6d9f2a5c8e1b4d7f0a3c6e9b2d5f88"
	assert.NoError(t, ValidateTransactionHash(valid))

	invalid := []string{
		"",
		"0x123",
		"9f2c7e1a4b8d3f6a9c2e5b8d1f4a7c0e3b6d9f2a5c8e1b4d7f0a3c6e9b2d5f88",
		"0xZZ2c7e1a4b8d3f6a9c2e5b8d1f4a7c0e3b6d9f2a5c8e1b4d7f0a3c6e9b2d5f88",
	}
	for _, hash := range invalid {
		assert.Error(t, ValidateTransactionHash(hash), "hash %q", hash)
	}
}

func TestBaseScanURL(t *testing.T) {
	assert.Equal(t,
		"https://basescan.org/tx/0xabc",
		BaseScanURL("0xabc"))
}
