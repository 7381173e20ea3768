// Package config loads plantbot configuration with the precedence
// defaults → YAML file → environment variables. Secrets are env-only and
// never read from YAML. Missing required configuration is a fatal startup
// error; nothing syncs until validation passes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns.
type Config struct {
	Notion     NotionConfig     `yaml:"notion"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Sync       SyncConfig       `yaml:"sync"`
	History    HistoryConfig    `yaml:"history"`
	Backup     BackupConfig     `yaml:"backup"`
	Conditions ConditionsConfig `yaml:"conditions"`
	Log        LogConfig        `yaml:"log"`
}

// NotionConfig contains Ledger API settings.
type NotionConfig struct {
	Token      string        `yaml:"-"` // env-only, never in YAML
	DatabaseID string        `yaml:"database_id"`
	BaseURL    string        `yaml:"base_url"` // empty = public API
	Properties PropertyNames `yaml:"properties"`
}

// PropertyNames names the Ledger database fields.
type PropertyNames struct {
	Name          string `yaml:"name"`
	NextWatering  string `yaml:"next_watering"`
	RecommendedML string `yaml:"recommended_water"`
	LastWatered   string `yaml:"last_watered"`
}

// TrackerConfig contains task-manager settings.
type TrackerConfig struct {
	Project string   `yaml:"project"`
	Timeout Duration `yaml:"timeout"`
}

// SyncConfig contains reconciliation settings.
type SyncConfig struct {
	CheckpointScheme string `yaml:"checkpoint_scheme"` // marker or set
	CheckpointPath   string `yaml:"checkpoint_path"`
	LogbookLimit     int    `yaml:"logbook_limit"`
}

// HistoryConfig contains run-history settings. An empty path disables the
// audit log.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// BackupConfig contains checkpoint backup settings. An empty bucket
// disables backup.
type BackupConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	ObjectKey string `yaml:"object_key"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	UseSSL    bool   `yaml:"use_ssl"`
}

// ConditionsConfig contains house-conditions settings, validated only when
// the conditions command runs.
type ConditionsConfig struct {
	URL               string `yaml:"url"`
	Token             string `yaml:"-"` // env-only, never in YAML
	TemperatureEntity string `yaml:"temperature_entity"`
	HumidityEntity    string `yaml:"humidity_entity"`
	PageID            string `yaml:"page_id"`
	TemperatureProp   string `yaml:"temperature_prop"`
	HumidityProp      string `yaml:"humidity_prop"`
	UpdatedAtProp     string `yaml:"updated_at_prop"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string
// parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("PLANTBOT_CONFIG_PATH", "config/plantbot.yaml")

	// Missing file is not an error; defaults plus env cover the common case.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values. Property and
// project defaults match the Ledger database this system grew around; any
// deployment can override them.
func newDefaults() *Config {
	return &Config{
		Notion: NotionConfig{
			Properties: PropertyNames{
				Name:          "Name",
				NextWatering:  "Next Watering",
				RecommendedML: "Recommended Water (ml)",
				LastWatered:   "Last Watered",
			},
		},
		Tracker: TrackerConfig{
			Project: "Plant Care",
			Timeout: Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			CheckpointScheme: "marker",
			CheckpointPath:   "state/sync_state.json",
			LogbookLimit:     400,
		},
		History: HistoryConfig{
			Path: "state/history.db",
		},
		Conditions: ConditionsConfig{
			TemperatureProp: "Temperature (F)",
			HumidityProp:    "Humidity (%)",
			UpdatedAtProp:   "Updated At",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Notion
	if v := os.Getenv("NOTION_TOKEN"); v != "" {
		cfg.Notion.Token = v
	}
	if v := os.Getenv("NOTION_DATABASE_ID"); v != "" {
		cfg.Notion.DatabaseID = v
	}
	if v := os.Getenv("NOTION_BASE_URL"); v != "" {
		cfg.Notion.BaseURL = v
	}
	if v := os.Getenv("PROP_NAME"); v != "" {
		cfg.Notion.Properties.Name = v
	}
	if v := os.Getenv("PROP_NEXT_WATERING"); v != "" {
		cfg.Notion.Properties.NextWatering = v
	}
	if v := os.Getenv("PROP_RECOMMENDED_WATER"); v != "" {
		cfg.Notion.Properties.RecommendedML = v
	}
	if v := os.Getenv("PROP_LAST_WATERED"); v != "" {
		cfg.Notion.Properties.LastWatered = v
	}

	// Tracker
	if v := os.Getenv("THINGS_PROJECT"); v != "" {
		cfg.Tracker.Project = v
	}
	if v := os.Getenv("PLANTBOT_TRACKER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tracker.Timeout = Duration(d)
		}
	}

	// Sync
	if v := os.Getenv("PLANTBOT_CHECKPOINT_SCHEME"); v != "" {
		cfg.Sync.CheckpointScheme = v
	}
	if v := os.Getenv("PLANTBOT_CHECKPOINT_PATH"); v != "" {
		cfg.Sync.CheckpointPath = v
	}
	if v := os.Getenv("PLANTBOT_LOGBOOK_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.LogbookLimit = n
		}
	}

	// History
	if v := os.Getenv("PLANTBOT_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// Backup
	if v := os.Getenv("PLANTBOT_S3_ENDPOINT"); v != "" {
		cfg.Backup.Endpoint = v
	}
	if v := os.Getenv("PLANTBOT_S3_REGION"); v != "" {
		cfg.Backup.Region = v
	}
	if v := os.Getenv("PLANTBOT_S3_BUCKET"); v != "" {
		cfg.Backup.Bucket = v
	}
	if v := os.Getenv("PLANTBOT_S3_OBJECT_KEY"); v != "" {
		cfg.Backup.ObjectKey = v
	}
	if v := os.Getenv("PLANTBOT_S3_ACCESS_KEY"); v != "" {
		cfg.Backup.AccessKey = v
	}
	if v := os.Getenv("PLANTBOT_S3_SECRET_KEY"); v != "" {
		cfg.Backup.SecretKey = v
	}
	if v := os.Getenv("PLANTBOT_S3_USE_SSL"); v != "" {
		cfg.Backup.UseSSL = v == "true" || v == "1"
	}

	// Conditions
	if v := os.Getenv("HA_URL"); v != "" {
		cfg.Conditions.URL = v
	}
	if v := os.Getenv("HA_TOKEN"); v != "" {
		cfg.Conditions.Token = v
	}
	if v := os.Getenv("HA_TEMP_ENTITY"); v != "" {
		cfg.Conditions.TemperatureEntity = v
	}
	if v := os.Getenv("HA_HUMIDITY_ENTITY"); v != "" {
		cfg.Conditions.HumidityEntity = v
	}
	if v := os.Getenv("HOUSE_PAGE_ID"); v != "" {
		cfg.Conditions.PageID = v
	}

	// Log
	if v := os.Getenv("PLANTBOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PLANTBOT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks the configuration every sync direction requires.
func (c *Config) validate() error {
	if c.Notion.Token == "" {
		return errors.New("NOTION_TOKEN is required")
	}
	if c.Notion.DatabaseID == "" {
		return errors.New("NOTION_DATABASE_ID is required")
	}
	p := c.Notion.Properties
	if p.Name == "" || p.NextWatering == "" || p.RecommendedML == "" || p.LastWatered == "" {
		return errors.New("all notion property names are required")
	}
	if c.Tracker.Project == "" {
		return errors.New("tracker project is required")
	}
	if c.Sync.CheckpointPath == "" {
		return errors.New("checkpoint path is required")
	}
	if s := c.Sync.CheckpointScheme; s != "marker" && s != "set" {
		return fmt.Errorf("unknown checkpoint scheme %q (want marker or set)", s)
	}
	if c.Sync.LogbookLimit <= 0 {
		return errors.New("logbook limit must be positive")
	}
	return nil
}

// ValidateConditions checks the settings the conditions command requires,
// on top of validate().
func (c *Config) ValidateConditions() error {
	if c.Conditions.URL == "" {
		return errors.New("HA_URL is required")
	}
	if c.Conditions.Token == "" {
		return errors.New("HA_TOKEN is required")
	}
	if c.Conditions.TemperatureEntity == "" || c.Conditions.HumidityEntity == "" {
		return errors.New("HA_TEMP_ENTITY and HA_HUMIDITY_ENTITY are required")
	}
	if c.Conditions.PageID == "" {
		return errors.New("HOUSE_PAGE_ID is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
