package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apisrv "github.com/compose-network/wormhole-keeper/server/api"
	"github.com/compose-network/wormhole-keeper/x/bridge"
	"github.com/compose-network/wormhole-keeper/x/keeper"
	"github.com/compose-network/wormhole-keeper/x/l1"
	"github.com/compose-network/wormhole-keeper/x/lock"
	"github.com/compose-network/wormhole-keeper/x/oracle"
	"github.com/compose-network/wormhole-keeper/x/starknet"
)

// Supported networks.
const (
	NetworkMainnet   = "MAINNET"
	NetworkGoerli    = "GOERLI"
	NetworkLocalhost = "LOCALHOST"
)

// Config holds the complete application configuration
type Config struct {
	Network string          `mapstructure:"network" yaml:"network"`
	Domain  string          `mapstructure:"domain"  yaml:"domain"`
	Keeper  KeeperConfig    `mapstructure:"keeper"  yaml:"keeper"`
	L1      l1.Config       `mapstructure:"l1"      yaml:"l1"`
	L2      starknet.Config `mapstructure:"l2"      yaml:"l2"`
	Oracle  oracle.Config   `mapstructure:"oracle"  yaml:"oracle"`
	Lock    lock.Config     `mapstructure:"lock"    yaml:"lock"`
	API     apisrv.Config   `mapstructure:"api"     yaml:"api"`
	Metrics MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig       `mapstructure:"log"     yaml:"log"`
}

// KeeperConfig holds the engine settings.
type KeeperConfig struct {
	FlushPolicy             string        `mapstructure:"flush_policy"              yaml:"flush_policy"`
	FlushDelayBlocks        uint64        `mapstructure:"flush_delay_blocks"        yaml:"flush_delay_blocks"`
	RequireMessageDelivered bool          `mapstructure:"require_message_delivered" yaml:"require_message_delivered"`
	PollInterval            time.Duration `mapstructure:"poll_interval"             yaml:"poll_interval"`
	FinalityTimeout         time.Duration `mapstructure:"finality_timeout"          yaml:"finality_timeout"`
	RunInterval             time.Duration `mapstructure:"run_interval"              yaml:"run_interval"`
	StatusTimeout           time.Duration `mapstructure:"status_timeout"            yaml:"status_timeout"`
}

// MetricsConfig holds metrics configuration. A zero port serves metrics on the API server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string
	// EnvFile is loaded into the process environment when it exists.
	EnvFile string
	// Network overrides NETWORK and the config file.
	Network string
}

// Load reads the env file, the config file and the environment, in increasing priority.
// The result is not validated; callers pick Validate or ValidateOracle.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	if err := bindEnv(v, commonEnv); err != nil {
		return nil, err
	}
	if opts.Network != "" {
		v.Set("network", opts.Network)
	}
	network := strings.ToUpper(strings.TrimSpace(v.GetString("network")))
	if err := bindEnv(v, networkEnv(network)); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Network = network
	cfg.applyNetworkDefaults()

	return &cfg, nil
}

// commonEnv maps config keys to unprefixed environment variables.
var commonEnv = map[string]string{
	"network":                          "NETWORK",
	"domain":                           "DOMAIN",
	"keeper.flush_policy":              "FLUSH_POLICY",
	"keeper.flush_delay_blocks":        "FLUSH_DELAY_BLOCKS",
	"keeper.require_message_delivered": "REQUIRE_MESSAGE_DELIVERED",
	"keeper.poll_interval":             "POLL_INTERVAL",
	"keeper.finality_timeout":          "FINALITY_TIMEOUT",
	"keeper.run_interval":              "RUN_INTERVAL",
	"l1.settle_from_block":             "SETTLE_FROM_BLOCK",
	"l1.message_from_block":            "MESSAGE_FROM_BLOCK",
	"oracle.url":                       "ORACLE_API_URL",
	"lock.redis_url":                   "LOCK_REDIS_URL",
	"lock.password":                    "LOCK_REDIS_PASSWORD",
	"log.level":                        "LOG_LEVEL",
	"log.pretty":                       "LOG_PRETTY",
	"metrics.enabled":                  "METRICS_ENABLED",
	"metrics.port":                     "METRICS_PORT",
	"metrics.path":                     "METRICS_PATH",
	"api.listen_addr":                  "API_LISTEN_ADDR",
}

// networkEnv maps config keys to ${NETWORK}_ prefixed environment variables.
func networkEnv(network string) map[string]string {
	if network == "" {
		return nil
	}
	p := network + "_"
	return map[string]string{
		"l1.rpc_endpoint":          p + "L1_RPC_URL",
		"l1.gateway_address":       p + "L1_DAI_WORMHOLE_GATEWAY_ADDRESS",
		"l1.join_address":          p + "L1_WORMHOLE_JOIN_ADDRESS",
		"l1.starknet_core_address": p + "L1_STARKNET_CORE_ADDRESS",
		"l1.private_key":           p + "L1_PRIVATE_KEY",
		"l1.chain_id":              p + "L1_CHAIN_ID",
		"l2.gateway_address":       p + "L2_DAI_WORMHOLE_GATEWAY_ADDRESS",
		"l2.feeder_url":            p + "L2_FEEDER_URL",
		"l2.gateway_url":           p + "L2_GATEWAY_URL",
	}
}

func bindEnv(v *viper.Viper, keys map[string]string) error {
	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("network", "")
	v.SetDefault("domain", "")

	v.SetDefault("keeper.flush_policy", keeper.Unconditional.String())
	v.SetDefault("keeper.flush_delay_blocks", 0)
	v.SetDefault("keeper.require_message_delivered", true)
	v.SetDefault("keeper.poll_interval", "1s")
	v.SetDefault("keeper.finality_timeout", "0s")
	v.SetDefault("keeper.run_interval", "5m")
	v.SetDefault("keeper.status_timeout", "30s")

	// L1 defaults
	l1d := l1.DefaultConfig()
	v.SetDefault("l1.rpc_endpoint", "")
	v.SetDefault("l1.gateway_address", "")
	v.SetDefault("l1.join_address", "")
	v.SetDefault("l1.starknet_core_address", "")
	v.SetDefault("l1.settle_from_block", 0)
	v.SetDefault("l1.message_from_block", 0)
	v.SetDefault("l1.private_key", "")
	v.SetDefault("l1.chain_id", 0)
	v.SetDefault("l1.use_eip1559", l1d.UseEIP1559)
	v.SetDefault("l1.max_fee_per_gas_wei", "0")
	v.SetDefault("l1.max_priority_fee_wei", "0")
	v.SetDefault("l1.gas_limit_buffer_pct", l1d.GasLimitBufferPct)
	v.SetDefault("l1.receipt_timeout", l1d.ReceiptTimeout.String())
	v.SetDefault("l1.receipt_poll_interval", l1d.ReceiptPollInterval.String())

	// L2 endpoints are derived from the network when left empty
	v.SetDefault("l2.feeder_url", "")
	v.SetDefault("l2.gateway_url", "")
	v.SetDefault("l2.gateway_address", "")
	v.SetDefault("l2.block_id", "pending")
	v.SetDefault("l2.timeout", "30s")

	od := oracle.DefaultConfig()
	v.SetDefault("oracle.url", od.URL)
	v.SetDefault("oracle.timeout", od.Timeout.String())

	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.password", "")
	v.SetDefault("lock.ttl", lock.DefaultTTL.String())

	ad := apisrv.DefaultConfig()
	v.SetDefault("api.listen_addr", ad.ListenAddr)
	v.SetDefault("api.metrics_path", ad.MetricsPath)
	v.SetDefault("api.enable_cors", false)
	v.SetDefault("api.read_header_timeout", ad.ReadHeaderTimeout.String())
	v.SetDefault("api.read_timeout", ad.ReadTimeout.String())
	v.SetDefault("api.write_timeout", ad.WriteTimeout.String())
	v.SetDefault("api.idle_timeout", ad.IdleTimeout.String())
	v.SetDefault("api.max_header_bytes", ad.MaxHeaderBytes)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 0)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// applyNetworkDefaults fills endpoints the network implies.
func (c *Config) applyNetworkDefaults() {
	if c.L2.FeederURL == "" {
		c.L2.FeederURL, _ = starknet.DefaultBaseURL(c.Network)
	}
	if c.L2.GatewayURL == "" {
		c.L2.GatewayURL = c.L2.FeederURL
	}
	if c.L1.RPCEndpoint == "" && c.Network == NetworkLocalhost {
		c.L1.RPCEndpoint = l1.DefaultConfig().RPCEndpoint
	}
	c.API.MetricsPath = c.Metrics.Path
}

// Validate checks everything the keeper commands need. Missing settings wrap
// bridge.ErrMissingConfiguration.
func (c *Config) Validate() error {
	if err := c.validateNetwork(); err != nil {
		return err
	}
	policy, err := c.FlushPolicy()
	if err != nil {
		return err
	}
	if _, err := c.ParsedDomain(); err != nil {
		return err
	}

	required := []struct{ key, value string }{
		{"l1.rpc_endpoint", c.L1.RPCEndpoint},
		{"l1.gateway_address", c.L1.GatewayAddress},
		{"l2.gateway_address", c.L2.GatewayAddress},
		{"l2.feeder_url", c.L2.FeederURL},
	}
	if policy == keeper.DelayGated {
		required = append(required, struct{ key, value string }{"l1.join_address", c.L1.JoinAddress})
	}
	if c.Keeper.RequireMessageDelivered {
		required = append(required, struct{ key, value string }{"l1.starknet_core_address", c.L1.StarknetCoreAddress})
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return missing(r.key)
		}
	}

	if c.Keeper.PollInterval <= 0 {
		return fmt.Errorf("keeper.poll_interval must be positive")
	}
	if c.Keeper.FinalityTimeout < 0 {
		return fmt.Errorf("keeper.finality_timeout must not be negative")
	}
	if c.Keeper.RunInterval <= 0 {
		return fmt.Errorf("keeper.run_interval must be positive")
	}
	return c.validateMetrics()
}

// ValidateSigner checks the L1 key needed to send finalizeFlush.
func (c *Config) ValidateSigner() error {
	if strings.TrimSpace(c.L1.PrivateKeyHex) == "" {
		return missing("l1.private_key")
	}
	return nil
}

// ValidateOracle checks the settings of the attestations command.
func (c *Config) ValidateOracle() error {
	if strings.TrimSpace(c.Oracle.URL) == "" {
		return missing("oracle.url")
	}
	return nil
}

func (c *Config) validateNetwork() error {
	switch c.Network {
	case NetworkMainnet, NetworkGoerli, NetworkLocalhost:
		return nil
	case "":
		return missing("network")
	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 0-65535 when metrics enabled, got %d", c.Metrics.Port)
	}
	return nil
}

// ParsedDomain returns the configured domain.
func (c *Config) ParsedDomain() (bridge.Domain, error) {
	if strings.TrimSpace(c.Domain) == "" {
		return bridge.Domain{}, missing("domain")
	}
	return bridge.ParseDomain(c.Domain)
}

// FlushPolicy returns the configured policy.
func (c *Config) FlushPolicy() (keeper.FlushPolicy, error) {
	return keeper.ParseFlushPolicy(c.Keeper.FlushPolicy)
}

// KeeperConfig builds the engine configuration. Call Validate first.
func (c *Config) KeeperConfig() (keeper.Config, error) {
	domain, err := c.ParsedDomain()
	if err != nil {
		return keeper.Config{}, err
	}
	policy, err := c.FlushPolicy()
	if err != nil {
		return keeper.Config{}, err
	}
	return keeper.Config{
		Domain:                  domain,
		Policy:                  policy,
		FlushDelayBlocks:        c.Keeper.FlushDelayBlocks,
		RequireMessageDelivered: c.Keeper.RequireMessageDelivered,
		MessageFromBlock:        c.L1.MessageFromBlock,
	}, nil
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", bridge.ErrMissingConfiguration, key)
}
