package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatEther renders a wei amount in whole native units.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// FormatGwei renders a wei amount in gwei.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}

// EtherToFloat converts wei to a float for thresholds and gauges.
func EtherToFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, -18).Float64()
	return f
}
