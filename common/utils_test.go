//go:build unit
// +build unit

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256Hex(t *testing.T) {
	// legacy keccak256, not NIST sha3-256
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256Hex([]byte("")))
	assert.Equal(t, "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45", Keccak256Hex([]byte("abc")))
}

func TestRandomNonce(t *testing.T) {
	nonce, err := RandomNonce()
	require.NoError(t, err)
	assert.Len(t, nonce, 66)
	assert.Equal(t, "0x", nonce[:2])

	other, err := RandomNonce()
	require.NoError(t, err)
	assert.NotEqual(t, nonce, other)
}

func TestPadHex32(t *testing.T) {
	assert.Equal(t, "0x00000000000000000000000000000000000000000000000000000000000000ff", PadHex32("0xff"))
	assert.Len(t, PadHex32("abc"), 66)
}

func TestHexRoundTrip(t *testing.T) {
	buf, err := HexToBytes("0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", BytesToHex(buf))
}
