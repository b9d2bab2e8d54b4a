package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is the gateway-owned fee payer. The key never leaves the process.
type Account struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// NewAccount parses a hex private key, with or without the 0x prefix.
func NewAccount(hexKey string) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("[RELAYER] invalid private key: %w", err)
	}
	return &Account{
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// Address returns the account address.
func (a *Account) Address() common.Address {
	return a.address
}

// String hides the key.
func (a *Account) String() string {
	return a.address.Hex()
}
