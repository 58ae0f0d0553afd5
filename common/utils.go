package common

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var seededRand *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))

// PanicIfEmpty panics if the given string is empty
func PanicIfEmpty(val string, msg string) {
	if val == "" {
		panic(msg)
	}
}

// StringOrNil returns the given string or nil when empty
func StringOrNil(str string) *string {
	if str == "" {
		return nil
	}
	return &str
}

// RandomString generates a random string of the given length
func RandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}

// RandomBytes generates a cryptographically random byte array
func RandomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	_, err := cryptorand.Read(b)
	if err != nil {
		return nil, fmt.Errorf("error generating random bytes %s", err.Error())
	}
	return b, nil
}

// RandomNonce generates a cryptographically random 32-byte nonce as a
// 0x-prefixed hex string; used for apartment commitment secrets
func RandomNonce() (string, error) {
	b, err := RandomBytes(32)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// SHA256 is a convenience method to return the sha256 hash of the given input
func SHA256(str string) string {
	digest := sha256.New()
	digest.Write([]byte(str))
	return hex.EncodeToString(digest.Sum(nil))
}

// Keccak256 returns the legacy keccak256 digest of the given input; this is
// the digest the ledger uses for all on-chain hashes
func Keccak256(buf []byte) []byte {
	digest := sha3.NewLegacyKeccak256()
	digest.Write(buf)
	return digest.Sum(nil)
}

// Keccak256Hex returns the 0x-prefixed hex-encoded keccak256 digest of the given input
func Keccak256Hex(buf []byte) string {
	return "0x" + hex.EncodeToString(Keccak256(buf))
}

// HexToBytes decodes an optionally 0x-prefixed hex string
func HexToBytes(str string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(str, "0x"))
}

// BytesToHex encodes the given bytes as a 0x-prefixed hex string
func BytesToHex(buf []byte) string {
	return "0x" + hex.EncodeToString(buf)
}

// PadHex32 left-pads an optionally 0x-prefixed hex string to 32 bytes; EC
// point coordinates strip leading zero bytes when serialized by the ledger
func PadHex32(str string) string {
	stripped := strings.TrimPrefix(str, "0x")
	for len(stripped) < 64 {
		stripped = "0" + stripped
	}
	return "0x" + stripped
}
