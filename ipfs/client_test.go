//go:build unit
// +build unit

package ipfs

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/crypto"
)

type document struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func newTestClient() *Client {
	return NewClientWithAPI(NewInMemoryAPI(), time.Second)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	client := newTestClient()

	hexHash, err := client.Upload(&document{Title: "flat in mitte", Count: 2})
	require.NoError(t, err)
	assert.Len(t, hexHash, 66)

	out := &document{}
	require.NoError(t, client.Download(hexHash, nil, out))
	assert.Equal(t, "flat in mitte", out.Title)
	assert.Equal(t, 2, out.Count)
}

func TestUploadIsDeterministic(t *testing.T) {
	client := newTestClient()

	first, err := client.Upload(&document{Title: "flat", Count: 1})
	require.NoError(t, err)
	second, err := client.Upload(&document{Title: "flat", Count: 1})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncryptedUploadDownload(t *testing.T) {
	client := newTestClient()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hexHash, err := client.Upload(&document{Title: "secret terms"}, priv.PubKey().SerializeUncompressed())
	require.NoError(t, err)

	out := &document{}
	require.NoError(t, client.Download(hexHash, priv.Serialize(), out))
	assert.Equal(t, "secret terms", out.Title)

	err = client.Download(hexHash, other.Serialize(), &document{})
	assert.Equal(t, crypto.ErrDecryptionFailed, err)
}

func TestDownloadNotFound(t *testing.T) {
	client := newTestClient()

	err := client.Download("0x"+common.SHA256("never uploaded"), nil, &document{})
	assert.Equal(t, ErrNotFound, err)
}
