package oracle

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const rewardsABI = `[
	{"type":"function","name":"getUserRewards","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	tokenContract   = mustParseABI(erc20ABI)
	rewardsContract = mustParseABI(rewardsABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("oracle: invalid contract abi: %v", err))
	}
	return parsed
}

// packAddressCall encodes a single-address view call.
func packAddressCall(contract abi.ABI, method string, addr common.Address) ([]byte, error) {
	return contract.Pack(method, addr)
}

// unpackUint256 decodes a single uint256 return value.
func unpackUint256(contract abi.ABI, method string, out []byte) (*big.Int, error) {
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, values[0])
	}
	return v, nil
}
