package ipfs

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// ErrUnsupportedDigest is returned for any content address whose multihash is
// not sha2-256/32; the compact on-ledger hash representation is only valid
// while a single digest algorithm and length is in use
var ErrUnsupportedDigest = errors.New("unsupported content digest")

// AddrToHexHash converts a base58 content address to the compact 0x-prefixed
// 32-byte hex hash recorded on the ledger
func AddrToHexHash(addr string) (string, error) {
	buf, err := base58.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("failed to decode content address %s; %s", addr, err.Error())
	}

	decoded, err := mh.Decode(buf)
	if err != nil {
		return "", fmt.Errorf("failed to decode multihash for content address %s; %s", addr, err.Error())
	}

	if decoded.Code != mh.SHA2_256 || decoded.Length != 32 {
		return "", ErrUnsupportedDigest
	}

	return "0x" + hex.EncodeToString(decoded.Digest), nil
}

// HexHashToAddr converts a 0x-prefixed 32-byte hex hash back to its base58
// content address by re-prepending the sha2-256/32 multihash prefix
func HexHashToAddr(hexHash string) (string, error) {
	digest, err := hex.DecodeString(strings.TrimPrefix(hexHash, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to decode hex hash %s; %s", hexHash, err.Error())
	}

	if len(digest) != 32 {
		return "", ErrUnsupportedDigest
	}

	buf, err := mh.Encode(digest, mh.SHA2_256)
	if err != nil {
		return "", fmt.Errorf("failed to encode multihash for hex hash %s; %s", hexHash, err.Error())
	}

	return base58.Encode(buf), nil
}
