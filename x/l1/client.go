package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/compose-network/wormhole-keeper/x/bridge"
	"github.com/compose-network/wormhole-keeper/x/l1/contracts"
)

// EthClient is the subset of *ethclient.Client used by Client.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

var _ EthClient = (*ethclient.Client)(nil)

// Client reads settlement and message state from L1 and submits finalizeFlush.
type Client struct {
	cfg     Config
	eth     EthClient
	signer  Signer
	chainID *big.Int
	gateway *contracts.GatewayBinding
	join    *contracts.JoinBinding
	core    *contracts.StarknetCoreBinding
	closeFn func()
	log     zerolog.Logger
}

// Dial connects to cfg.RPCEndpoint and builds a Client with a local key signer
// when cfg.PrivateKeyHex is set.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.RPCEndpoint) == "" {
		return nil, fmt.Errorf("%w: L1 RPC endpoint", bridge.ErrMissingConfiguration)
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial L1 RPC: %w", err)
	}

	var signer Signer
	if cfg.PrivateKeyHex != "" {
		chainID := new(big.Int).SetUint64(cfg.ChainID)
		if cfg.ChainID == 0 {
			chainID, err = ec.ChainID(ctx)
			if err != nil {
				ec.Close()
				return nil, bridge.RemoteQueryError("eth_chainId", err)
			}
			cfg.ChainID = chainID.Uint64()
		}
		signer, err = NewLocalECDSASignerFromHex(chainID, cfg.PrivateKeyHex)
		if err != nil {
			ec.Close()
			return nil, err
		}
	}

	c, err := NewClient(cfg, ec, signer, log)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closeFn = ec.Close
	return c, nil
}

// NewClient wires an existing EthClient. The signer may be nil for read-only use.
func NewClient(cfg Config, eth EthClient, signer Signer, log zerolog.Logger) (*Client, error) {
	if eth == nil {
		return nil, errors.New("eth client is required")
	}

	gateway, err := contracts.NewGatewayBinding(cfg.GatewayAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bridge.ErrMissingConfiguration, err)
	}

	c := &Client{
		cfg:     cfg,
		eth:     eth,
		signer:  signer,
		gateway: gateway,
		log:     log.With().Str("component", "l1-client").Logger(),
	}
	if cfg.ChainID != 0 {
		c.chainID = new(big.Int).SetUint64(cfg.ChainID)
	}
	if strings.TrimSpace(cfg.JoinAddress) != "" {
		if c.join, err = contracts.NewJoinBinding(cfg.JoinAddress); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.StarknetCoreAddress) != "" {
		if c.core, err = contracts.NewStarknetCoreBinding(cfg.StarknetCoreAddress); err != nil {
			return nil, err
		}
	}

	ev := c.log.Info().Str("gateway", gateway.Address().Hex())
	if c.join != nil {
		ev = ev.Str("join", c.join.Address().Hex())
	}
	if c.core != nil {
		ev = ev.Str("starknet_core", c.core.Address().Hex())
	}
	if signer != nil {
		ev = ev.Str("from", signer.Address().Hex())
	}
	ev.Msg("L1 client initialized")

	return c, nil
}

// GatewayAddress is the L1 DAI wormhole gateway.
func (c *Client) GatewayAddress() common.Address { return c.gateway.Address() }

// Close releases the RPC connection when the client was dialed.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// BlockNumber returns the current L1 head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, bridge.RemoteQueryError("eth_blockNumber", err)
	}
	return n, nil
}

// LatestSettleEvent returns the most recent Settle event for domain, or nil if none.
func (c *Client) LatestSettleEvent(ctx context.Context, domain bridge.Domain) (*bridge.SettleEvent, error) {
	if c.join == nil {
		return nil, fmt.Errorf("%w: L1 wormhole join address", bridge.ErrMissingConfiguration)
	}

	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.cfg.SettleFromBlock),
		Addresses: []common.Address{c.join.Address()},
		Topics:    c.join.SettleTopics(domain.L1Hash()),
	})
	if err != nil {
		return nil, bridge.RemoteQueryError("filter Settle logs", err)
	}

	var latest *bridge.SettleEvent
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := c.join.ParseSettle(lg)
		if err != nil {
			c.log.Warn().Err(err).Msg("Skipping undecodable Settle log")
			continue
		}
		if latest == nil || ev.After(*latest) {
			latest = &ev
		}
	}

	if latest != nil {
		c.log.Debug().
			Str("domain", domain.Name()).
			Uint64("block", latest.BlockNumber).
			Str("amount", latest.BatchedAmount.String()).
			Msg("Latest Settle event")
	}
	return latest, nil
}

// MessageDelivery reports whether the latest L2→L1 message from l2Gateway to l1Gateway
// has been consumed on L1. Only consumptions at or after the dispatch block count.
func (c *Client) MessageDelivery(
	ctx context.Context,
	l2Gateway *big.Int,
	l1Gateway common.Address,
	fromBlock uint64,
) (bridge.Delivery, error) {
	if c.core == nil {
		return bridge.Delivery{}, fmt.Errorf("%w: L1 Starknet core address", bridge.ErrMissingConfiguration)
	}
	if l2Gateway == nil {
		return bridge.Delivery{}, errors.New("L2 gateway address is required")
	}

	dispatched, err := c.latestMessage(ctx, contracts.EventLogMessageToL1, l2Gateway, l1Gateway, fromBlock)
	if err != nil {
		return bridge.Delivery{}, err
	}
	if dispatched == nil {
		return bridge.Delivery{Status: bridge.NoPendingMessage}, nil
	}

	consumed, err := c.messages(ctx, contracts.EventConsumedMessageToL1, l2Gateway, l1Gateway, dispatched.BlockNumber)
	if err != nil {
		return bridge.Delivery{}, err
	}

	out := bridge.Delivery{Status: bridge.NotDelivered, Dispatched: dispatched}
	for i := range consumed {
		m := consumed[i]
		if m.BlockNumber < dispatched.BlockNumber || !m.Matches(*dispatched) {
			continue
		}
		out.Status = bridge.Delivered
		out.Consumption = &m
		break
	}

	c.log.Debug().
		Stringer("status", out.Status).
		Uint64("dispatch_block", dispatched.BlockNumber).
		Msg("Message delivery checked")
	return out, nil
}

// IsDelivered is MessageDelivery reduced to Delivered or not.
func (c *Client) IsDelivered(
	ctx context.Context,
	l2Gateway *big.Int,
	l1Gateway common.Address,
	fromBlock uint64,
) (bool, error) {
	d, err := c.MessageDelivery(ctx, l2Gateway, l1Gateway, fromBlock)
	if err != nil {
		return false, err
	}
	return d.Status == bridge.Delivered, nil
}

func (c *Client) latestMessage(
	ctx context.Context,
	event string,
	from *big.Int,
	to common.Address,
	fromBlock uint64,
) (*bridge.BridgeMessage, error) {
	msgs, err := c.messages(ctx, event, from, to, fromBlock)
	if err != nil {
		return nil, err
	}
	var latest *bridge.BridgeMessage
	for i := range msgs {
		m := msgs[i]
		if latest == nil || m.BlockNumber > latest.BlockNumber ||
			(m.BlockNumber == latest.BlockNumber && m.LogIndex > latest.LogIndex) {
			latest = &m
		}
	}
	return latest, nil
}

func (c *Client) messages(
	ctx context.Context,
	event string,
	from *big.Int,
	to common.Address,
	fromBlock uint64,
) ([]bridge.BridgeMessage, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.core.Address()},
		Topics:    c.core.MessageTopics(event, from, to),
	})
	if err != nil {
		return nil, bridge.RemoteQueryError("filter "+event+" logs", err)
	}

	out := make([]bridge.BridgeMessage, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		m, err := c.core.ParseMessage(event, lg)
		if err != nil {
			c.log.Warn().Err(err).Str("event", event).Msg("Skipping undecodable message log")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// FinalizeFlush submits finalizeFlush(domain, amount) to the L1 gateway and returns the tx hash.
// With a non-zero ReceiptTimeout it also waits for a successful receipt.
func (c *Client) FinalizeFlush(ctx context.Context, domain bridge.Domain, amount *uint256.Int) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, fmt.Errorf("%w: L1 private key", bridge.ErrMissingConfiguration)
	}

	data, err := c.gateway.BuildFinalizeFlushCalldata(bridge.EncodeDomain(domain, bridge.TargetL1), amount)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.buildTx(ctx, c.gateway.Address(), data)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign finalizeFlush: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send finalizeFlush: %w", err)
	}

	c.log.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Str("domain", domain.Name()).
		Str("amount", amount.Dec()).
		Uint64("nonce", signed.Nonce()).
		Uint64("gas", signed.Gas()).
		Msg("finalizeFlush submitted")

	if c.cfg.ReceiptTimeout > 0 {
		if err := c.waitReceipt(ctx, signed.Hash()); err != nil {
			return signed.Hash(), err
		}
	}
	return signed.Hash(), nil
}

func (c *Client) buildTx(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := c.signer.Address()

	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, bridge.RemoteQueryError("eth_getTransactionCount", err)
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas * c.cfg.GasLimitBufferPct / 100

	if !c.cfg.UseEIP1559 {
		price, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, bridge.RemoteQueryError("eth_gasPrice", err)
		}
		price = capWei(price, c.cfg.MaxFeePerGasWei)
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Data:     data,
		}), nil
	}

	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, bridge.RemoteQueryError("eth_maxPriorityFeePerGas", err)
	}
	tip = capWei(tip, c.cfg.MaxPriorityFeeWei)

	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, bridge.RemoteQueryError("eth_getBlockByNumber", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	feeCap = capWei(feeCap, c.cfg.MaxFeePerGasWei)
	if feeCap.Cmp(tip) < 0 {
		tip = new(big.Int).Set(feeCap)
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}), nil
}

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, bridge.RemoteQueryError("eth_chainId", err)
	}
	c.chainID = id
	return id, nil
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) error {
	interval := c.cfg.ReceiptPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("finalizeFlush %s reverted in block %s", hash.Hex(), receipt.BlockNumber)
			}
			c.log.Info().
				Str("tx_hash", hash.Hex()).
				Str("block", receipt.BlockNumber.String()).
				Uint64("gas_used", receipt.GasUsed).
				Msg("finalizeFlush mined")
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return bridge.RemoteQueryError("eth_getTransactionReceipt", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for finalizeFlush receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// capWei lowers v to the decimal limit when one is configured.
func capWei(v *big.Int, limit string) *big.Int {
	if limit == "" {
		return v
	}
	ceiling, ok := new(big.Int).SetString(limit, 10)
	if !ok || ceiling.Sign() <= 0 || v.Cmp(ceiling) <= 0 {
		return v
	}
	return ceiling
}
