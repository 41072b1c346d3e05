package starknet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

const (
	entryBatchedDaiToFlush = "batched_dai_to_flush"
	entryFlush             = "flush"

	statusAcceptedOnL1 = "ACCEPTED_ON_L1"
	statusRejected     = "REJECTED"
	codeReceived       = "TRANSACTION_RECEIVED"
)

// InvokeFunction is the body of an INVOKE_FUNCTION add_transaction request.
type InvokeFunction struct {
	Type               string   `json:"type"`
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
	Signature          []string `json:"signature"`
}

// Signer attaches a signature to an invoke. Keys are managed outside this package;
// without a signer, invokes are sent unsigned.
type Signer interface {
	SignInvoke(ctx context.Context, tx InvokeFunction) ([]string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithSigner sets the invoke signer.
func WithSigner(s Signer) Option {
	return func(cl *Client) {
		cl.signer = s
	}
}

// Client talks to the Starknet feeder gateway (reads) and gateway (writes).
type Client struct {
	feederURL  *url.URL
	gatewayURL *url.URL
	gateway    *big.Int
	blockID    string
	httpClient *http.Client
	signer     Signer
	log        zerolog.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, log zerolog.Logger, opts ...Option) (*Client, error) {
	if cfg.FeederURL == "" {
		return nil, errors.New("feeder URL is required")
	}
	feeder, err := url.Parse(cfg.FeederURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feeder URL: %w", err)
	}
	gatewayRaw := cfg.GatewayURL
	if gatewayRaw == "" {
		gatewayRaw = cfg.FeederURL
	}
	gw, err := url.Parse(gatewayRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	gatewayAddr, err := ParseFelt(cfg.GatewayAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid L2 gateway address: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	blockID := cfg.BlockID
	if blockID == "" {
		blockID = "pending"
	}

	c := &Client{
		feederURL:  feeder,
		gatewayURL: gw,
		gateway:    gatewayAddr,
		blockID:    blockID,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "starknet-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.Info().
		Str("feeder_url", feeder.String()).
		Str("gateway_url", gw.String()).
		Str("l2_gateway", feltHex(gatewayAddr)).
		Msg("Starknet client initialized")

	return c, nil
}

// GatewayAddress is the L2 wormhole gateway felt.
func (c *Client) GatewayAddress() *big.Int {
	return new(big.Int).Set(c.gateway)
}

// PendingDebt calls batched_dai_to_flush(domain) and returns the raw limbs.
func (c *Client) PendingDebt(ctx context.Context, domain bridge.Domain) (bridge.SplitAmount, error) {
	result, err := c.callContract(ctx, entryBatchedDaiToFlush, []*big.Int{domain.L2Felt()})
	if err != nil {
		return bridge.SplitAmount{}, bridge.RemoteQueryError(entryBatchedDaiToFlush, err)
	}
	if len(result) < 2 {
		return bridge.SplitAmount{}, bridge.RemoteQueryError(
			entryBatchedDaiToFlush,
			fmt.Errorf("expected 2 result felts, got %d", len(result)),
		)
	}

	low, err := ParseFelt(result[0])
	if err != nil {
		return bridge.SplitAmount{}, bridge.RemoteQueryError(entryBatchedDaiToFlush, err)
	}
	high, err := ParseFelt(result[1])
	if err != nil {
		return bridge.SplitAmount{}, bridge.RemoteQueryError(entryBatchedDaiToFlush, err)
	}

	c.log.Debug().
		Str("domain", domain.Name()).
		Str("low", low.String()).
		Str("high", high.String()).
		Msg("read batched debt")

	return bridge.SplitAmount{Low: low, High: high}, nil
}

// Flush submits flush(domain) to the L2 gateway and returns the transaction hash.
func (c *Client) Flush(ctx context.Context, domain bridge.Domain) (string, error) {
	tx := InvokeFunction{
		Type:               "INVOKE_FUNCTION",
		ContractAddress:    feltHex(c.gateway),
		EntryPointSelector: feltHex(Selector(entryFlush)),
		Calldata:           []string{domain.L2Felt().String()},
		Signature:          []string{},
	}
	if c.signer != nil {
		sig, err := c.signer.SignInvoke(ctx, tx)
		if err != nil {
			return "", fmt.Errorf("sign flush: %w", err)
		}
		tx.Signature = sig
	}

	var resp addTransactionResponse
	if err := c.post(ctx, c.gatewayURL, "gateway/add_transaction", tx, &resp); err != nil {
		return "", fmt.Errorf("submit flush: %w", err)
	}
	if resp.Code != codeReceived || resp.TransactionHash == "" {
		return "", fmt.Errorf("submit flush: gateway answered code %q", resp.Code)
	}

	c.log.Info().
		Str("domain", domain.Name()).
		Str("tx_hash", resp.TransactionHash).
		Msg("flush transaction received by gateway")

	return resp.TransactionHash, nil
}

// TransactionStatus reads the receipt status of txHash.
func (c *Client) TransactionStatus(ctx context.Context, txHash string) (bridge.TxOutcome, error) {
	if txHash == "" {
		return bridge.TxOutcome{}, errors.New("transaction hash is required")
	}

	endpoint := c.buildURL(c.feederURL, "feeder_gateway/get_transaction_receipt")
	q := url.Values{}
	q.Set("transactionHash", txHash)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return bridge.TxOutcome{}, fmt.Errorf("prepare receipt request: %w", err)
	}

	var receipt receiptResponse
	if err := c.do(req, &receipt); err != nil {
		return bridge.TxOutcome{}, bridge.RemoteQueryError("get_transaction_receipt", err)
	}

	outcome := bridge.TxOutcome{RawStatus: receipt.Status}
	switch receipt.Status {
	case statusAcceptedOnL1:
		outcome.Status = bridge.TxAcceptedOnL1
	case statusRejected:
		outcome.Status = bridge.TxRejected
		outcome.Reason = receipt.failureReason()
	default:
		outcome.Status = bridge.TxPending
	}
	return outcome, nil
}

func (c *Client) callContract(ctx context.Context, entryPoint string, calldata []*big.Int) ([]string, error) {
	args := make([]string, len(calldata))
	for i, v := range calldata {
		args[i] = v.String()
	}
	body := callContractRequest{
		ContractAddress:    feltHex(c.gateway),
		EntryPointSelector: feltHex(Selector(entryPoint)),
		Calldata:           args,
		Signature:          []string{},
	}

	endpoint := c.buildURL(c.feederURL, "feeder_gateway/call_contract")
	q := url.Values{}
	q.Set("blockNumber", c.blockID)
	endpoint.RawQuery = q.Encode()

	var resp callContractResponse
	if err := c.postURL(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, base *url.URL, p string, body, out any) error {
	return c.postURL(ctx, c.buildURL(base, p), body, out)
}

func (c *Client) postURL(ctx context.Context, endpoint *url.URL, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", req.URL.Path).Msg("starknet request failed")
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.log.Error().
			Int("status_code", res.StatusCode).
			Str("endpoint", req.URL.Path).
			Str("response", string(msg)).
			Msg("starknet returned error response")
		return fmt.Errorf("starknet returned %s: %s", res.Status, string(msg))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) buildURL(base *url.URL, p string) *url.URL {
	clone := *base
	clone.Path = path.Join(base.Path, p)
	clone.RawQuery = ""
	return &clone
}

type callContractRequest struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
	Signature          []string `json:"signature"`
}

type callContractResponse struct {
	Result []string `json:"result"`
}

type addTransactionResponse struct {
	Code            string `json:"code"`
	TransactionHash string `json:"transaction_hash"`
}

type receiptResponse struct {
	Status          string          `json:"status"`
	TxFailureReason json.RawMessage `json:"tx_failure_reason,omitempty"`
}

// failureReason accepts both {"code", "error_message"} objects and plain strings.
func (r receiptResponse) failureReason() string {
	if len(r.TxFailureReason) == 0 {
		return ""
	}
	var structured struct {
		Code         string `json:"code"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(r.TxFailureReason, &structured); err == nil {
		if structured.ErrorMessage != "" {
			return structured.ErrorMessage
		}
		return structured.Code
	}
	var plain string
	if err := json.Unmarshal(r.TxFailureReason, &plain); err == nil {
		return plain
	}
	return string(r.TxFailureReason)
}
