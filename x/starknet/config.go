package starknet

import (
	"strings"
	"time"
)

// Well-known sequencer endpoints per network.
var defaultBaseURLs = map[string]string{
	"MAINNET":   "https://alpha-mainnet.starknet.io",
	"GOERLI":    "https://alpha4.starknet.io",
	"LOCALHOST": "http://localhost:5000",
}

// Config holds the L2 endpoints and the wormhole gateway address.
type Config struct {
	// FeederURL serves reads (call_contract, get_transaction_receipt).
	FeederURL string `mapstructure:"feeder_url" yaml:"feeder_url"`
	// GatewayURL accepts add_transaction.
	GatewayURL string `mapstructure:"gateway_url" yaml:"gateway_url"`
	// GatewayAddress is the L2 DAI wormhole gateway contract (felt, hex).
	GatewayAddress string `mapstructure:"gateway_address" yaml:"gateway_address"`
	// BlockID used for reads, "pending" or "latest".
	BlockID string        `mapstructure:"block_id" yaml:"block_id"`
	Timeout time.Duration `mapstructure:"timeout"  yaml:"timeout"`
}

// DefaultBaseURL returns the sequencer base URL of a network.
func DefaultBaseURL(network string) (string, bool) {
	u, ok := defaultBaseURLs[strings.ToUpper(strings.TrimSpace(network))]
	return u, ok
}

// DefaultConfig fills the endpoints for network.
func DefaultConfig(network string) Config {
	base, _ := DefaultBaseURL(network)
	return Config{
		FeederURL:  base,
		GatewayURL: base,
		BlockID:    "pending",
		Timeout:    30 * time.Second,
	}
}
