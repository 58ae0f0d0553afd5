//go:build unit
// +build unit

package ipfs

import (
	"testing"

	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbc/rent/common"
)

func TestHexHashAddrRoundTrip(t *testing.T) {
	hexHash := "0x" + common.SHA256("some content")

	addr, err := HexHashToAddr(hexHash)
	require.NoError(t, err)

	back, err := AddrToHexHash(addr)
	require.NoError(t, err)
	assert.Equal(t, hexHash, back)
}

func TestAddrToHexHashRejectsForeignDigest(t *testing.T) {
	// a sha1 multihash has a different prefix and a 20-byte digest; the
	// compact hex form would be ambiguous, so conversion must fail fast
	buf, err := mh.Encode(make([]byte, 20), mh.SHA1)
	require.NoError(t, err)

	_, err = AddrToHexHash(base58.Encode(buf))
	assert.Equal(t, ErrUnsupportedDigest, err)
}

func TestHexHashToAddrRejectsShortHash(t *testing.T) {
	_, err := HexHashToAddr("0xdeadbeef")
	assert.Equal(t, ErrUnsupportedDigest, err)
}

func TestAddrToHexHashRejectsMalformedAddress(t *testing.T) {
	_, err := AddrToHexHash("not-base58-0OIl")
	assert.Error(t, err)
}
