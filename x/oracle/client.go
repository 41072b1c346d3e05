// Package oracle fetches wormhole attestations from the oracle API.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

const (
	wordHexLen  = 64
	guidWords   = 7
	attestation = "wormhole"
)

// ErrMalformedEvent is returned when an attested event is not a packed WormholeGUID.
var ErrMalformedEvent = errors.New("malformed wormhole event")

// Config points at the oracle API.
type Config struct {
	URL     string        `mapstructure:"url"     yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{URL: "http://localhost:8080", Timeout: 10 * time.Second}
}

// OracleData is one oracle's answer.
type OracleData struct {
	Data struct {
		Event string `json:"event"`
		Hash  string `json:"hash"`
	} `json:"data"`
	Signatures struct {
		Ethereum struct {
			Signature string `json:"signature"`
		} `json:"ethereum"`
	} `json:"signatures"`
}

// Attestations is the combined answer for one L2 transaction.
type Attestations struct {
	// Signatures is every oracle signature concatenated, 0x-prefixed.
	Signatures   string               `json:"signatures"              yaml:"signatures"`
	WormholeGUID *bridge.WormholeGUID `json:"wormhole_guid,omitempty" yaml:"wormhole_guid,omitempty"`
	Count        int                  `json:"count"                   yaml:"count"`
}

type Client struct {
	base       *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient validates cfg.URL. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: oracle URL", bridge.ErrMissingConfiguration)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle URL: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:       u,
		httpClient: httpClient,
		log:        log.With().Str("component", "oracle-client").Logger(),
	}, nil
}

// FetchAttestations queries the oracles for txHash. The GUID is decoded from the first answer.
func (c *Client) FetchAttestations(ctx context.Context, txHash string) (Attestations, error) {
	if txHash == "" {
		return Attestations{}, errors.New("transaction hash is required")
	}

	endpoint := *c.base
	q := endpoint.Query()
	q.Set("type", attestation)
	q.Set("index", txHash)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Attestations{}, fmt.Errorf("prepare oracle request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Attestations{}, bridge.RemoteQueryError("oracle attestations", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Attestations{}, bridge.RemoteQueryError(
			"oracle attestations",
			fmt.Errorf("oracle returned %s: %s", resp.Status, string(msg)),
		)
	}

	var results []OracleData
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Attestations{}, bridge.RemoteQueryError("oracle attestations", fmt.Errorf("decode response: %w", err))
	}

	var sigs strings.Builder
	sigs.WriteString("0x")
	for _, r := range results {
		sigs.WriteString(strings.TrimPrefix(r.Signatures.Ethereum.Signature, "0x"))
	}

	out := Attestations{Signatures: sigs.String(), Count: len(results)}
	if len(results) > 0 {
		guid, err := DecodeWormholeGUID(results[0].Data.Event)
		if err != nil {
			return out, err
		}
		out.WormholeGUID = &guid
	}

	c.log.Debug().Str("tx_hash", txHash).Int("attestations", out.Count).Msg("Fetched attestations")
	return out, nil
}

// DecodeWormholeGUID splits a packed event into seven 32-byte words:
// sourceDomain, targetDomain, receiver, operator, amount, nonce, timestamp.
func DecodeWormholeGUID(eventHex string) (bridge.WormholeGUID, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(eventHex), "0x")
	if len(raw) < guidWords*wordHexLen {
		return bridge.WormholeGUID{}, fmt.Errorf("%w: %d hex chars, want at least %d",
			ErrMalformedEvent, len(raw), guidWords*wordHexLen)
	}

	words := make([]common.Hash, guidWords)
	for i := range words {
		b, err := hexutil.Decode("0x" + raw[i*wordHexLen:(i+1)*wordHexLen])
		if err != nil {
			return bridge.WormholeGUID{}, fmt.Errorf("%w: word %d: %w", ErrMalformedEvent, i, err)
		}
		words[i] = common.BytesToHash(b)
	}

	return bridge.WormholeGUID{
		SourceDomain: words[0],
		TargetDomain: words[1],
		Receiver:     words[2],
		Operator:     words[3],
		Amount:       new(big.Int).SetBytes(words[4].Bytes()),
		Nonce:        new(big.Int).SetBytes(words[5].Bytes()),
		Timestamp:    new(big.Int).SetBytes(words[6].Bytes()),
	}, nil
}
