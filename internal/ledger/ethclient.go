package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/septivank/ledger-relay-gateway/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EthConfig holds the node endpoint and call bounds.
type EthConfig struct {
	RPCURL       string
	NetworkName  string
	CallTimeout  time.Duration
	PollInterval time.Duration
}

// EthConnector talks to an EVM JSON-RPC node. The connection is dialed on
// first use; every call runs under CallTimeout.
type EthConnector struct {
	cfg     EthConfig
	account *Account
	logger  *zap.Logger
	metrics *metrics.Metrics

	dialMu sync.Mutex
	rpc    *ethclient.Client

	// txMu guards nonce and chainID across build+sign+send.
	txMu      sync.Mutex
	nextNonce *uint64
	chainID   *big.Int
}

// NewEthConnector creates a connector. account may be nil for a read-only gateway.
func NewEthConnector(cfg EthConfig, account *Account, logger *zap.Logger, m *metrics.Metrics) *EthConnector {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthConnector{cfg: cfg, account: account, logger: logger, metrics: m}
}

func (c *EthConnector) IsAvailable() bool { return c.cfg.RPCURL != "" }

func (c *EthConnector) RelayerAddress() (common.Address, bool) {
	if c.account == nil {
		return common.Address{}, false
	}
	return c.account.Address(), true
}

func (c *EthConnector) client(ctx context.Context) (*ethclient.Client, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if c.rpc != nil {
		return c.rpc, nil
	}
	if c.cfg.RPCURL == "" {
		return nil, ErrUnavailable
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	rpc, err := ethclient.DialContext(dialCtx, c.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("[LEDGER] failed to dial node: %w", err)
	}
	c.logger.Info("ledger connection established", zap.String("network", c.cfg.NetworkName))
	c.rpc = rpc
	return rpc, nil
}

func (c *EthConnector) observe(method string, start time.Time, err *error) {
	c.metrics.ObserveLedgerCall(method, time.Since(start), *err)
}

func (c *EthConnector) GetBalance(ctx context.Context, address common.Address) (bal *big.Int, err error) {
	defer c.observe("get_balance", time.Now(), &err)

	rpc, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	bal, err = rpc.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return bal, nil
}

func (c *EthConnector) GetNetworkStatus(ctx context.Context) (status NetworkStatus, err error) {
	defer c.observe("network_status", time.Now(), &err)

	rpc, err := c.client(ctx)
	if err != nil {
		return NetworkStatus{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	var (
		height   uint64
		gasPrice *big.Int
		tipCap   *big.Int
		chainID  *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		height, err = rpc.BlockNumber(gctx)
		return err
	})
	g.Go(func() (err error) {
		gasPrice, err = rpc.SuggestGasPrice(gctx)
		return err
	})
	g.Go(func() error {
		// not every chain serves eth_maxPriorityFeePerGas
		tip, err := rpc.SuggestGasTipCap(gctx)
		if err == nil {
			tipCap = tip
		}
		return nil
	})
	g.Go(func() (err error) {
		chainID, err = rpc.ChainID(gctx)
		return err
	})
	if err = g.Wait(); err != nil {
		return NetworkStatus{}, fmt.Errorf("failed to read network status: %w", err)
	}

	maxFee := gasPrice
	if tipCap != nil {
		maxFee = new(big.Int).Add(gasPrice, tipCap)
	}

	return NetworkStatus{
		BlockHeight:  height,
		FeeEstimate:  FormatGwei(gasPrice),
		MaxFeePerGas: FormatGwei(maxFee),
		ChainID:      chainID.Int64(),
		Network:      c.cfg.NetworkName,
		Timestamp:    time.Now().UnixMilli(),
	}, nil
}

func (c *EthConnector) CallContract(ctx context.Context, to common.Address, data []byte) (out []byte, err error) {
	defer c.observe("call_contract", time.Now(), &err)

	rpc, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	out, err = rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	return out, nil
}

// SendRaw builds, signs and submits a transaction from the relayer account.
// Submissions are serialized so nonces never collide; a failed submission
// drops the cached nonce so the next one re-reads it from the node.
func (c *EthConnector) SendRaw(ctx context.Context, req TxRequest) (pending PendingTx, err error) {
	if c.account == nil {
		return PendingTx{}, ErrNoSigner
	}
	defer c.observe("send_raw", time.Now(), &err)

	rpc, err := c.client(ctx)
	if err != nil {
		return PendingTx{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	c.txMu.Lock()
	defer c.txMu.Unlock()

	defer func() {
		if err != nil {
			c.nextNonce = nil
		}
	}()

	if c.chainID == nil {
		id, err := rpc.ChainID(ctx)
		if err != nil {
			return PendingTx{}, fmt.Errorf("failed to read chain id: %w", err)
		}
		c.chainID = id
	}
	if c.nextNonce == nil {
		n, err := rpc.PendingNonceAt(ctx, c.account.Address())
		if err != nil {
			return PendingTx{}, fmt.Errorf("failed to read nonce: %w", err)
		}
		c.nextNonce = &n
	}
	nonce := *c.nextNonce

	tx, err := c.buildTx(ctx, rpc, nonce, req)
	if err != nil {
		return PendingTx{}, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.account.key)
	if err != nil {
		return PendingTx{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := rpc.SendTransaction(ctx, signed); err != nil {
		return PendingTx{}, fmt.Errorf("failed to submit transaction: %w", err)
	}

	next := nonce + 1
	c.nextNonce = &next

	c.logger.Debug("transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)
	return PendingTx{Hash: signed.Hash(), Nonce: nonce, SubmittedAt: time.Now()}, nil
}

func (c *EthConnector) buildTx(ctx context.Context, rpc *ethclient.Client, nonce uint64, req TxRequest) (*types.Transaction, error) {
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := req.To

	head, err := rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := rpc.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      req.GasLimit,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		}), nil
	}

	tip, err := rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest tip cap: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       req.GasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	}), nil
}

// AwaitConfirmation polls for the receipt until it is mined or timeout elapses.
func (c *EthConnector) AwaitConfirmation(ctx context.Context, pending PendingTx, timeout time.Duration) (conf Confirmation, err error) {
	defer c.observe("await_confirmation", time.Now(), &err)

	rpc, err := c.client(ctx)
	if err != nil {
		return Confirmation{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := rpc.TransactionReceipt(ctx, pending.Hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return Confirmation{}, fmt.Errorf("%w: %s", ErrReverted, pending.Hash.Hex())
			}
			return Confirmation{
				TxHash:      receipt.TxHash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
			}, nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
		default:
			return Confirmation{}, fmt.Errorf("failed to read receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return Confirmation{}, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, pending.Hash.Hex())
		case <-ticker.C:
		}
	}
}
