package importcertificatebatch

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// MaxPayloadBytes caps the CSV carried in the job variables.
	MaxPayloadBytes int `mapstructure:"max_payload_bytes"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		MaxJobsActive:   1,
		Timeout:         10 * time.Minute,
		MaxPayloadBytes: 4 << 20,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max_payload_bytes must be positive")
	}
	return nil
}
