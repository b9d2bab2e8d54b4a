package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnavailable is returned by every call when no ledger endpoint is configured.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrNoSigner is returned by SendRaw when no relayer account is loaded.
	ErrNoSigner = errors.New("ledger: no relayer account configured")
	// ErrTimeout is returned when a confirmation wait exceeds its bound.
	ErrTimeout = errors.New("ledger: confirmation timed out")
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("ledger: transaction reverted")
)

// NetworkStatus is a point-in-time view of the connected chain.
type NetworkStatus struct {
	BlockHeight  uint64 `json:"blockHeight"`
	FeeEstimate  string `json:"feeEstimate"`
	MaxFeePerGas string `json:"maxFeePerGas"`
	ChainID      int64  `json:"chainId"`
	Network      string `json:"network"`
	Timestamp    int64  `json:"timestamp"`
}

// TxRequest describes a transaction to be built and signed by the relayer account.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// PendingTx is the handle of a submitted, not yet confirmed transaction.
type PendingTx struct {
	Hash        common.Hash
	Nonce       uint64
	SubmittedAt time.Time
}

// Confirmation is the mined outcome of a transaction.
type Confirmation struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// Connector is the gateway's view of a remote ledger node.
type Connector interface {
	IsAvailable() bool
	RelayerAddress() (common.Address, bool)
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	GetNetworkStatus(ctx context.Context) (NetworkStatus, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendRaw(ctx context.Context, req TxRequest) (PendingTx, error)
	AwaitConfirmation(ctx context.Context, pending PendingTx, timeout time.Duration) (Confirmation, error)
}

// Unavailable is the connector used when no ledger endpoint is configured.
// Every call fails fast with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) IsAvailable() bool { return false }

func (Unavailable) RelayerAddress() (common.Address, bool) { return common.Address{}, false }

func (Unavailable) GetBalance(context.Context, common.Address) (*big.Int, error) {
	return nil, ErrUnavailable
}

func (Unavailable) GetNetworkStatus(context.Context) (NetworkStatus, error) {
	return NetworkStatus{}, ErrUnavailable
}

func (Unavailable) CallContract(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, ErrUnavailable
}

func (Unavailable) SendRaw(context.Context, TxRequest) (PendingTx, error) {
	return PendingTx{}, ErrUnavailable
}

func (Unavailable) AwaitConfirmation(context.Context, PendingTx, time.Duration) (Confirmation, error) {
	return Confirmation{}, ErrUnavailable
}
