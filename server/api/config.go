package api

import "time"

// Config defines runtime parameters for the status API server.
type Config struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	MetricsPath       string        `mapstructure:"metrics_path"        yaml:"metrics_path"`
	EnableCORS        bool          `mapstructure:"enable_cors"         yaml:"enable_cors"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	// Status queries hit both chains, keep this above the RPC timeouts.
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"     yaml:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":8090",
		MetricsPath:       "/metrics",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
}
