package operations

import (
	"time"

	"shockstudy/internal/config"
)

// Default stage timeouts
const (
	DefaultStageTimeout    = 10 * time.Minute
	DefaultDownloadTimeout = 30 * time.Minute
)

// Config is the runner configuration
type Config struct {
	// StageTimeouts override DefaultStageTimeout per stage ID
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// ManifestPath, if set, is where the manifest is written after the run
	ManifestPath string `json:"manifest_path"`

	// MetricsTextfile, if set, receives the Prometheus registry after the run
	MetricsTextfile string `json:"metrics_textfile"`
}

// NewConfig returns the default runner configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			config.StageDownload: DefaultDownloadTimeout,
		},
	}
}

// GetStageTimeout returns the timeout for a stage
func (c *Config) GetStageTimeout(stageID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stageID]; ok && timeout > 0 {
		return timeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout sets the timeout for a stage
func (c *Config) SetStageTimeout(stageID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stageID] = timeout
}
