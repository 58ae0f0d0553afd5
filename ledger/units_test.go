//go:build unit
// +build unit

package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFinneyToWei(t *testing.T) {
	assert.Equal(t, "1000000000000000", FinneyToWei(1).String())
	assert.Equal(t, "0", FinneyToWei(0).String())
	assert.Equal(t, "800000000000000000", FinneyToWei(800).String())
}

func TestWeiToFinneyRoundTrip(t *testing.T) {
	assert.Equal(t, uint64(300), WeiToFinney(FinneyToWei(300)))

	// sub-finney remainders truncate
	wei := new(big.Int).Add(FinneyToWei(5), big.NewInt(999))
	assert.Equal(t, uint64(5), WeiToFinney(wei))
}

func TestWeiToEthString(t *testing.T) {
	assert.Equal(t, "0", WeiToEthString(big.NewInt(0)))
	assert.Equal(t, "1", WeiToEthString(FinneyToWei(1000)))
	assert.Equal(t, "0.3", WeiToEthString(FinneyToWei(300)))
	assert.Equal(t, "1.5", WeiToEthString(FinneyToWei(1500)))
	assert.Equal(t, "0.000000000000000001", WeiToEthString(big.NewInt(1)))
}

func TestFinneyToEthString(t *testing.T) {
	assert.Equal(t, "0.3", FinneyToEthString(300))
	assert.Equal(t, "2", FinneyToEthString(2000))
}
