package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/couchbc/rent/common"
)

// PublicKeyToAddress derives the 20-byte ledger address for an uncompressed
// secp256k1 public key (keccak256 of the 64-byte point, last 20 bytes)
func PublicKeyToAddress(publicKey []byte) (string, error) {
	if len(publicKey) != 65 || publicKey[0] != 0x04 {
		return "", fmt.Errorf("failed to derive address; expected 65-byte uncompressed public key, got %d bytes", len(publicKey))
	}

	digest := common.Keccak256(publicKey[1:])
	return "0x" + hex.EncodeToString(digest[12:]), nil
}

// SignMessage signs the keccak256 digest of the given message with the private
// key, producing a compact recoverable signature as a 0x-prefixed hex string
func SignMessage(message string, privateKey []byte) (string, error) {
	priv, _ := btcec.PrivKeyFromBytes(privateKey)
	if priv == nil {
		return "", fmt.Errorf("failed to sign message; invalid private key")
	}

	sig := btcecdsa.SignCompact(priv, common.Keccak256([]byte(message)), false)
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner recovers the ledger address that produced the given compact
// signature over the keccak256 digest of message
func RecoverSigner(message, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to decode signature; %s", err.Error())
	}

	pubkey, _, err := btcecdsa.RecoverCompact(sig, common.Keccak256([]byte(message)))
	if err != nil {
		return "", fmt.Errorf("failed to recover signer; %s", err.Error())
	}

	return PublicKeyToAddress(pubkey.SerializeUncompressed())
}

// VerifySignature returns true if the compact signature over message was
// produced by the key whose derived address matches the given address
func VerifySignature(message, signature, address string) bool {
	signer, err := RecoverSigner(message, signature)
	if err != nil {
		common.Log.Debugf("failed to verify signature; %s", err.Error())
		return false
	}

	return strings.EqualFold(signer, address)
}
