// Package ledgertest provides a testify mock of ledger.Connector.
package ledgertest

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/septivank/ledger-relay-gateway/internal/ledger"
	"github.com/stretchr/testify/mock"
)

// Connector is a mock ledger.Connector. Available and Relayer are static;
// every network call goes through the mock.
type Connector struct {
	mock.Mock
	Available bool
	Relayer   common.Address
	HasSigner bool
}

var _ ledger.Connector = (*Connector)(nil)

func (c *Connector) IsAvailable() bool { return c.Available }

func (c *Connector) RelayerAddress() (common.Address, bool) { return c.Relayer, c.HasSigner }

func (c *Connector) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	args := c.Called(ctx, address)
	bal, _ := args.Get(0).(*big.Int)
	return bal, args.Error(1)
}

func (c *Connector) GetNetworkStatus(ctx context.Context) (ledger.NetworkStatus, error) {
	args := c.Called(ctx)
	return args.Get(0).(ledger.NetworkStatus), args.Error(1)
}

func (c *Connector) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	args := c.Called(ctx, to, data)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (c *Connector) SendRaw(ctx context.Context, req ledger.TxRequest) (ledger.PendingTx, error) {
	args := c.Called(ctx, req)
	return args.Get(0).(ledger.PendingTx), args.Error(1)
}

func (c *Connector) AwaitConfirmation(ctx context.Context, pending ledger.PendingTx, timeout time.Duration) (ledger.Confirmation, error) {
	args := c.Called(ctx, pending, timeout)
	return args.Get(0).(ledger.Confirmation), args.Error(1)
}
