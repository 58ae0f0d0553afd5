//go:build unit
// +build unit

package crypto

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) ([]byte, []byte) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.Serialize(), priv.PubKey().SerializeUncompressed()
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	priv, pub := testKeyPair(t)

	envelope, err := Encrypt([]byte("attack at dawn"), pub)
	require.NoError(t, err)

	plaintext, err := Decrypt(envelope, priv)
	require.NoError(t, err)
	assert.Equal(t, "attack at dawn", string(plaintext))
}

func TestDecryptWithWrongKey(t *testing.T) {
	_, pub := testKeyPair(t)
	otherPriv, _ := testKeyPair(t)

	envelope, err := Encrypt([]byte("attack at dawn"), pub)
	require.NoError(t, err)

	_, err = Decrypt(envelope, otherPriv)
	assert.Equal(t, ErrDecryptionFailed, err)
}

func TestEnvelopeWireFormat(t *testing.T) {
	_, pub := testKeyPair(t)

	envelope, err := Encrypt([]byte("payload"), pub)
	require.NoError(t, err)

	buf, err := json.Marshal(envelope)
	require.NoError(t, err)

	// four hex strings: iv, ephemeral public key, ciphertext, mac
	var parts []string
	require.NoError(t, json.Unmarshal(buf, &parts))
	require.Len(t, parts, 4)
	assert.Len(t, parts[0], nonceLen*2)
	assert.Len(t, parts[1], ephemeralPublicKeyLen*2)
	assert.Len(t, parts[3], tagLen*2)

	decoded := &Envelope{}
	require.NoError(t, json.Unmarshal(buf, decoded))
	assert.Equal(t, envelope, decoded)
}

func TestEncryptStringRoundTrip(t *testing.T) {
	priv, pub := testKeyPair(t)

	ciphertext, err := EncryptString("hello rental", pub)
	require.NoError(t, err)

	plaintext, ok := DecryptString(ciphertext, priv)
	require.True(t, ok)
	assert.Equal(t, "hello rental", plaintext)
}

func TestDecryptStringNotForMe(t *testing.T) {
	_, pub := testKeyPair(t)
	otherPriv, _ := testKeyPair(t)

	ciphertext, err := EncryptString("hello rental", pub)
	require.NoError(t, err)

	_, ok := DecryptString(ciphertext, otherPriv)
	assert.False(t, ok)
}

func TestDecryptStringGarbage(t *testing.T) {
	priv, _ := testKeyPair(t)

	_, ok := DecryptString("not an envelope", priv)
	assert.False(t, ok)
}

func TestMultiRecipientEncryption(t *testing.T) {
	priv1, pub1 := testKeyPair(t)
	priv2, pub2 := testKeyPair(t)
	priv3, _ := testKeyPair(t)

	ciphertext, err := EncryptString("shared disclosure", pub1, pub2)
	require.NoError(t, err)

	plaintext, ok := DecryptString(ciphertext, priv1)
	require.True(t, ok)
	assert.Equal(t, "shared disclosure", plaintext)

	plaintext, ok = DecryptString(ciphertext, priv2)
	require.True(t, ok)
	assert.Equal(t, "shared disclosure", plaintext)

	_, ok = DecryptString(ciphertext, priv3)
	assert.False(t, ok)
}
