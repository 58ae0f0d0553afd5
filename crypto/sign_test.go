//go:build unit
// +build unit

package crypto

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	address, err := PublicKeyToAddress(priv.PubKey().SerializeUncompressed())
	require.NoError(t, err)

	signature, err := SignMessage("accept:1-0xabc-0xowner", priv.Serialize())
	require.NoError(t, err)

	signer, err := RecoverSigner("accept:1-0xabc-0xowner", signature)
	require.NoError(t, err)
	assert.Equal(t, address, signer)

	assert.True(t, VerifySignature("accept:1-0xabc-0xowner", signature, address))
	assert.False(t, VerifySignature("accept:2-0xabc-0xowner", signature, address))
}

func TestVerifySignatureWrongAddress(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherAddress, err := PublicKeyToAddress(other.PubKey().SerializeUncompressed())
	require.NoError(t, err)

	signature, err := SignMessage("refuse:7", priv.Serialize())
	require.NoError(t, err)

	assert.False(t, VerifySignature("refuse:7", signature, otherAddress))
}

func TestPublicKeyToAddressRejectsCompressed(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	_, err = PublicKeyToAddress(priv.PubKey().SerializeCompressed())
	assert.Error(t, err)
}
