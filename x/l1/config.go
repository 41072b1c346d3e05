package l1

import "time"

// Config holds the L1 endpoint, contract addresses and transaction settings.
type Config struct {
	// RPC endpoint of an Ethereum node.
	RPCEndpoint string `mapstructure:"rpc_endpoint" yaml:"rpc_endpoint"`

	// L1 DAI wormhole gateway, target of finalizeFlush.
	GatewayAddress string `mapstructure:"gateway_address" yaml:"gateway_address"`
	// Wormhole join, source of Settle events. Only the delay-gated policy reads it.
	JoinAddress string `mapstructure:"join_address" yaml:"join_address"`
	// Starknet core contract emitting LogMessageToL1 / ConsumedMessageToL1.
	StarknetCoreAddress string `mapstructure:"starknet_core_address" yaml:"starknet_core_address"`

	// Log scan starting points.
	SettleFromBlock  uint64 `mapstructure:"settle_from_block"  yaml:"settle_from_block"`
	MessageFromBlock uint64 `mapstructure:"message_from_block" yaml:"message_from_block"`

	// Signing configuration
	PrivateKeyHex string `mapstructure:"private_key" yaml:"-"`
	ChainID       uint64 `mapstructure:"chain_id"    yaml:"chain_id"` // 0 = ask the node

	// Gas/fees configuration (EIP-1559)
	UseEIP1559        bool   `mapstructure:"use_eip1559"          yaml:"use_eip1559"`
	MaxFeePerGasWei   string `mapstructure:"max_fee_per_gas_wei"  yaml:"max_fee_per_gas_wei"`  // optional cap
	MaxPriorityFeeWei string `mapstructure:"max_priority_fee_wei" yaml:"max_priority_fee_wei"` // optional tip cap
	GasLimitBufferPct uint64 `mapstructure:"gas_limit_buffer_pct" yaml:"gas_limit_buffer_pct"`

	// Receipt handling after submission. Zero timeout returns right after broadcast.
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"       yaml:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval" yaml:"receipt_poll_interval"`
}

func DefaultConfig() Config {
	return Config{
		RPCEndpoint:         "http://localhost:8545",
		UseEIP1559:          true,
		GasLimitBufferPct:   15,
		ReceiptTimeout:      5 * time.Minute,
		ReceiptPollInterval: 2 * time.Second,
	}
}
