package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	ecies "github.com/ecies/go/v2"

	"github.com/couchbc/rent/common"
)

// ValidMarker is prepended to plaintexts before encryption and checked after
// decryption; its absence after an otherwise-successful decryption means the
// message was not intended for the decrypting key
const ValidMarker = "VALID "

// ErrDecryptionFailed is the routine "not for me" outcome; passive consumers
// treat it the same as an absent message
var ErrDecryptionFailed = errors.New("decryption failed")

const ephemeralPublicKeyLen = 65
const nonceLen = 16
const tagLen = 16

// Envelope is an ECIES envelope; it marshals as a JSON array of four hex
// strings [iv, ephemeralPublicKey, ciphertext, mac] to remain compatible with
// the ledger clients already exchanging these payloads
type Envelope struct {
	IV                 string
	EphemeralPublicKey string
	Ciphertext         string
	MAC                string
}

// MarshalJSON encodes the envelope as [iv, ephemeralPublicKey, ciphertext, mac]
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{e.IV, e.EphemeralPublicKey, e.Ciphertext, e.MAC})
}

// UnmarshalJSON decodes the envelope from [iv, ephemeralPublicKey, ciphertext, mac]
func (e *Envelope) UnmarshalJSON(buf []byte) error {
	var parts []string
	if err := json.Unmarshal(buf, &parts); err != nil {
		return err
	}
	if len(parts) != 4 {
		return fmt.Errorf("malformed cipher envelope; expected 4 elements, got %d", len(parts))
	}
	e.IV = parts[0]
	e.EphemeralPublicKey = parts[1]
	e.Ciphertext = parts[2]
	e.MAC = parts[3]
	return nil
}

func (e *Envelope) bytes() ([]byte, error) {
	ephemeral, err := hex.DecodeString(e.EphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(e.IV)
	if err != nil {
		return nil, err
	}
	mac, err := hex.DecodeString(e.MAC)
	if err != nil {
		return nil, err
	}
	ciphertext, err := hex.DecodeString(e.Ciphertext)
	if err != nil {
		return nil, err
	}

	if len(ephemeral) != ephemeralPublicKeyLen || len(iv) != nonceLen || len(mac) != tagLen {
		return nil, fmt.Errorf("malformed cipher envelope; unexpected element lengths")
	}

	buf := make([]byte, 0, len(ephemeral)+len(iv)+len(mac)+len(ciphertext))
	buf = append(buf, ephemeral...)
	buf = append(buf, iv...)
	buf = append(buf, mac...)
	buf = append(buf, ciphertext...)
	return buf, nil
}

func envelopeFromBytes(buf []byte) (*Envelope, error) {
	if len(buf) < ephemeralPublicKeyLen+nonceLen+tagLen {
		return nil, fmt.Errorf("malformed ECIES output; %d bytes", len(buf))
	}

	return &Envelope{
		EphemeralPublicKey: hex.EncodeToString(buf[:ephemeralPublicKeyLen]),
		IV:                 hex.EncodeToString(buf[ephemeralPublicKeyLen : ephemeralPublicKeyLen+nonceLen]),
		MAC:                hex.EncodeToString(buf[ephemeralPublicKeyLen+nonceLen : ephemeralPublicKeyLen+nonceLen+tagLen]),
		Ciphertext:         hex.EncodeToString(buf[ephemeralPublicKeyLen+nonceLen+tagLen:]),
	}, nil
}

// Encrypt the plaintext for the given uncompressed secp256k1 public key
func Encrypt(plaintext []byte, publicKey []byte) (*Envelope, error) {
	pubkey, err := ecies.NewPublicKeyFromBytes(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recipient public key; %s", err.Error())
	}

	buf, err := ecies.Encrypt(pubkey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt %d-byte plaintext; %s", len(plaintext), err.Error())
	}

	return envelopeFromBytes(buf)
}

// EncryptMulti encrypts the same plaintext for each of the given public keys
// such that any one of the corresponding private keys can decrypt it; the
// envelopes are independent and share only the plaintext
func EncryptMulti(plaintext []byte, publicKeys [][]byte) ([]*Envelope, error) {
	envelopes := make([]*Envelope, 0, len(publicKeys))
	for _, publicKey := range publicKeys {
		envelope, err := Encrypt(plaintext, publicKey)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

// Decrypt the envelope with the given private key; returns ErrDecryptionFailed
// when the key cannot open the envelope
func Decrypt(envelope *Envelope, privateKey []byte) ([]byte, error) {
	buf, err := envelope.bytes()
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := ecies.Decrypt(ecies.NewPrivateKeyFromBytes(privateKey), buf)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncryptString encrypts str, prepending the validity marker, and returns the
// JSON-serialized envelope; when multiple public keys are given the result is
// a JSON array of envelopes
func EncryptString(str string, publicKeys ...[]byte) (string, error) {
	plaintext := []byte(ValidMarker + str)

	if len(publicKeys) == 1 {
		envelope, err := Encrypt(plaintext, publicKeys[0])
		if err != nil {
			return "", err
		}
		buf, err := json.Marshal(envelope)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}

	envelopes, err := EncryptMulti(plaintext, publicKeys)
	if err != nil {
		return "", err
	}
	buf, err := json.Marshal(envelopes)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// DecryptString attempts to decrypt a JSON-serialized envelope (or array of
// envelopes) and strip the validity marker; the second return value is false
// for any routine "not for me" outcome, including marker absence after an
// apparently successful decryption
func DecryptString(str string, privateKey []byte) (string, bool) {
	for _, envelope := range parseEnvelopes(str) {
		plaintext, err := Decrypt(envelope, privateKey)
		if err != nil {
			continue
		}

		if !strings.HasPrefix(string(plaintext), ValidMarker) {
			common.Log.Debugf("decrypted %d-byte plaintext without validity marker; dropping", len(plaintext))
			continue
		}

		return strings.TrimPrefix(string(plaintext), ValidMarker), true
	}

	return "", false
}

func parseEnvelopes(str string) []*Envelope {
	var envelope Envelope
	if err := json.Unmarshal([]byte(str), &envelope); err == nil {
		return []*Envelope{&envelope}
	}

	var envelopes []*Envelope
	if err := json.Unmarshal([]byte(str), &envelopes); err == nil {
		return envelopes
	}

	return nil
}
