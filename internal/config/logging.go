package config

import "autorndc/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`       // debug, info, warn, error
	FileOutput bool            `yaml:"file_output"` // JSON log under paths.log_dir
	Categories map[string]bool `yaml:"categories"`  // Per-category toggles
}

// IsCategoryEnabled reports whether a category logs. Unlisted categories
// are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// LoggingOptions returns the registry options for this config.
func (c *Config) LoggingOptions() logging.Options {
	opts := logging.Options{Level: c.Logging.Level, Categories: c.Logging.Categories}
	if c.Logging.FileOutput {
		opts.Dir = c.Paths.LogDir
	}
	return opts
}
