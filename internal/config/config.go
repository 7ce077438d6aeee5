package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"autorndc/internal/browser"
	"autorndc/internal/checkpoint"
	"autorndc/internal/correct"
	"autorndc/internal/engine"
	"autorndc/internal/portal"
	"autorndc/internal/update"
)

// Config holds all autorndc configuration.
type Config struct {
	Portal      PortalConfig     `yaml:"portal"`
	Browser     BrowserConfig    `yaml:"browser"`
	Timeouts    TimeoutsConfig   `yaml:"timeouts"`
	Remesas     RemesaConfig     `yaml:"remesas"`
	Manifiestos ManifestConfig   `yaml:"manifiestos"`
	Engine      EngineConfig     `yaml:"engine"`
	Recovery    RecoveryConfig   `yaml:"recovery"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	Paths       PathsConfig      `yaml:"paths"`
	Logging     LoggingConfig    `yaml:"logging"`
	History     HistoryConfig    `yaml:"history"`
	Update      UpdateConfig     `yaml:"update"`
	Control     ControlConfig    `yaml:"control"`
}

// PortalConfig holds the RNDC URLs.
type PortalConfig = portal.Endpoints

// BrowserConfig configures the automation driver.
type BrowserConfig struct {
	Engine            string   `yaml:"engine"` // rod, playwright
	Headless          bool     `yaml:"headless"`
	Bin               string   `yaml:"bin"` // Chrome binary; empty downloads or finds one
	Flags             []string `yaml:"flags"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
}

// TimeoutsConfig bounds waits on the portal.
type TimeoutsConfig struct {
	Alert     string `yaml:"alert"`
	PageReady string `yaml:"page_ready"`
	Settle    string `yaml:"settle"`
}

// RemesaConfig tunes remesa fulfillment.
type RemesaConfig struct {
	Column              int `yaml:"column"`
	MaxRetries          int `yaml:"max_retries"`
	CRE141OffsetMinutes int `yaml:"cre141_offset_minutes"`
	FormLoadAttempts    int `yaml:"form_load_attempts"`
}

// ManifestConfig tunes manifest fulfillment.
type ManifestConfig struct {
	Column             int    `yaml:"column"`
	MaxRetries         int    `yaml:"max_retries"`
	SurchargeIncrement int64  `yaml:"surcharge_increment"`
	SurchargeReason    string `yaml:"surcharge_reason"`
}

// EngineConfig configures the retry loop.
type EngineConfig struct {
	NoAlertPolicy string `yaml:"no_alert_policy"` // retry, pause, fail
	NoAlertDelay  string `yaml:"no_alert_delay"`
}

// RecoveryConfig configures outage handling.
type RecoveryConfig struct {
	Interval         string `yaml:"interval"`
	MaxAttempts      int    `yaml:"max_attempts"`
	DocumentAttempts int    `yaml:"document_attempts"`
	// ProbeURL defaults to portal.base_url.
	ProbeURL string `yaml:"probe_url"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string `yaml:"backend"` // file, sqlite
}

// PathsConfig holds output locations.
type PathsConfig struct {
	LogDir        string `yaml:"log_dir"`
	CheckpointDir string `yaml:"checkpoint_dir"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// UpdateConfig configures the release check.
type UpdateConfig struct {
	URL          string `yaml:"url"`
	CheckOnStart bool   `yaml:"check_on_start"`
}

// ControlConfig configures the operator control file.
type ControlConfig struct {
	File string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Portal: portal.DefaultEndpoints(),

		Browser: BrowserConfig{
			Engine:            browser.EngineRod,
			ViewportWidth:     1366,
			ViewportHeight:    900,
			NavigationTimeout: "30s",
		},

		Timeouts: TimeoutsConfig{
			Alert:     "3s",
			PageReady: "10s",
			Settle:    "500ms",
		},

		Remesas: RemesaConfig{
			Column:              9,
			MaxRetries:          1,
			CRE141OffsetMinutes: 30,
			FormLoadAttempts:    3,
		},

		Manifiestos: ManifestConfig{
			Column:             8,
			MaxRetries:         18,
			SurchargeIncrement: 100000,
			SurchargeReason:    "R",
		},

		Engine: EngineConfig{
			NoAlertPolicy: string(engine.PolicyRetry),
			NoAlertDelay:  "5s",
		},

		Recovery: RecoveryConfig{
			Interval:         "60s",
			MaxAttempts:      60,
			DocumentAttempts: 3,
		},

		Checkpoint: CheckpointConfig{Backend: string(checkpoint.BackendFile)},

		Paths: PathsConfig{
			LogDir:        "logs",
			CheckpointDir: "logs",
		},

		Logging: LoggingConfig{
			Level:      "info",
			FileOutput: true,
		},

		History: HistoryConfig{
			Enabled: true,
			Path:    "logs/historial.db",
		},

		Update: UpdateConfig{URL: update.DefaultURL},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides and home expansion are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTORNDC_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("AUTORNDC_ENGINE"); v != "" {
		c.Browser.Engine = strings.ToLower(v)
	}
	if v := os.Getenv("AUTORNDC_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("AUTORNDC_LOG_DIR"); v != "" {
		c.Paths.LogDir = v
	}
	if v := os.Getenv("AUTORNDC_NO_ALERT_POLICY"); v != "" {
		c.Engine.NoAlertPolicy = v
	}
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Paths.LogDir, &c.Paths.CheckpointDir, &c.History.Path, &c.Control.File, &c.Browser.Bin,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case "", browser.EngineRod, browser.EnginePlaywright:
	default:
		return fmt.Errorf("invalid browser engine: %s (valid: rod, playwright)", c.Browser.Engine)
	}
	if _, err := engine.ParsePolicy(c.Engine.NoAlertPolicy); err != nil {
		return err
	}
	switch checkpoint.Backend(c.Checkpoint.Backend) {
	case "", checkpoint.BackendFile, checkpoint.BackendSQLite:
	default:
		return fmt.Errorf("invalid checkpoint backend: %s (valid: file, sqlite)", c.Checkpoint.Backend)
	}
	if c.Remesas.MaxRetries < 0 || c.Manifiestos.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if c.Remesas.Column < 0 || c.Manifiestos.Column < 0 {
		return fmt.Errorf("column must be >= 0")
	}
	if c.Manifiestos.SurchargeIncrement <= 0 {
		return fmt.Errorf("surcharge_increment must be > 0")
	}
	return nil
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// BrowserSettings returns the driver configuration.
func (c *Config) BrowserSettings() browser.Config {
	return browser.Config{
		Engine:            c.Browser.Engine,
		Headless:          c.Browser.Headless,
		Bin:               c.Browser.Bin,
		Flags:             c.Browser.Flags,
		ViewportWidth:     c.Browser.ViewportWidth,
		ViewportHeight:    c.Browser.ViewportHeight,
		NavigationTimeout: duration(c.Browser.NavigationTimeout, 30*time.Second),
	}
}

// PortalTimeouts returns the portal wait windows.
func (c *Config) PortalTimeouts() portal.Timeouts {
	d := portal.DefaultTimeouts()
	return portal.Timeouts{
		Alert:     duration(c.Timeouts.Alert, d.Alert),
		PageReady: duration(c.Timeouts.PageReady, d.PageReady),
		Settle:    duration(c.Timeouts.Settle, d.Settle),
	}
}

// CorrectionOptions returns the correction tuning shared by both forms.
func (c *Config) CorrectionOptions() correct.Options {
	return correct.Options{
		CRE141OffsetMinutes: c.Remesas.CRE141OffsetMinutes,
		SurchargeIncrement:  c.Manifiestos.SurchargeIncrement,
		SurchargeReason:     c.Manifiestos.SurchargeReason,
	}
}

// EngineOptions returns the retry loop bounds for maxRetries.
func (c *Config) EngineOptions(maxRetries int) engine.Options {
	policy, err := engine.ParsePolicy(c.Engine.NoAlertPolicy)
	if err != nil {
		policy = engine.PolicyRetry
	}
	return engine.Options{
		MaxRetries:    maxRetries,
		NoAlertPolicy: policy,
		NoAlertDelay:  duration(c.Engine.NoAlertDelay, 5*time.Second),
	}
}

// RecoveryInterval returns the wait between probes.
func (c *Config) RecoveryInterval() time.Duration {
	return duration(c.Recovery.Interval, 60*time.Second)
}

// ProbeURL returns the URL used to check the portal is back.
func (c *Config) ProbeURL() string {
	if c.Recovery.ProbeURL != "" {
		return c.Recovery.ProbeURL
	}
	return c.Portal.BaseURL
}
