package periodrunner

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the spacing between two keeper cycles.
const DefaultInterval = 5 * time.Minute

// PeriodRunnerConfig configures a PeriodRunner.
type PeriodRunnerConfig struct {
	// Handler is invoked at the start of every period.
	Handler PeriodCallback
	// Interval is the period length. Defaults to DefaultInterval.
	Interval time.Duration
	// GenesisTime is the timestamp at which period 0 starts. Defaults to the Start time.
	GenesisTime time.Time
	// Now returns the current time. Useful for deterministic tests. Defaults to time.Now if nil.
	Now    func() time.Time
	Logger zerolog.Logger
}

// DefaultPeriodRunnerConfig returns a config with sensible defaults.
func DefaultPeriodRunnerConfig(logger zerolog.Logger) PeriodRunnerConfig {
	return PeriodRunnerConfig{
		Interval: DefaultInterval,
		Now:      time.Now,
		Logger:   logger.With().Str("component", "period-runner").Logger(),
	}
}
