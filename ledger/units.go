package ledger

import (
	"math/big"
	"strings"
)

// monetary values cross the fee/deposit boundary as exact integers; no
// floating point is permitted anywhere in these conversions

var weiPerFinney = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
var weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FinneyToWei converts a finney-denominated amount to wei
func FinneyToWei(finney uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(finney), weiPerFinney)
}

// WeiToFinney converts a wei-denominated amount to whole finney, truncating
// any sub-finney remainder
func WeiToFinney(wei *big.Int) uint64 {
	return new(big.Int).Div(wei, weiPerFinney).Uint64()
}

// WeiToEthString renders a wei-denominated amount as a decimal eth string
// without floating point; trailing fractional zeros are trimmed
func WeiToEthString(wei *big.Int) string {
	quo, rem := new(big.Int).QuoRem(wei, weiPerEth, new(big.Int))

	if rem.Sign() == 0 {
		return quo.String()
	}

	frac := rem.String()
	for len(frac) < 18 {
		frac = "0" + frac
	}
	frac = strings.TrimRight(frac, "0")

	return quo.String() + "." + frac
}

// FinneyToEthString renders a finney-denominated amount as a decimal eth
// string
func FinneyToEthString(finney uint64) string {
	return WeiToEthString(FinneyToWei(finney))
}
