package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"NOTION_TOKEN",
		"NOTION_DATABASE_ID",
		"NOTION_BASE_URL",
		"PROP_NAME",
		"PROP_NEXT_WATERING",
		"PROP_RECOMMENDED_WATER",
		"PROP_LAST_WATERED",
		"THINGS_PROJECT",
		"PLANTBOT_TRACKER_TIMEOUT",
		"PLANTBOT_CHECKPOINT_SCHEME",
		"PLANTBOT_CHECKPOINT_PATH",
		"PLANTBOT_LOGBOOK_LIMIT",
		"PLANTBOT_HISTORY_PATH",
		"PLANTBOT_S3_ENDPOINT",
		"PLANTBOT_S3_REGION",
		"PLANTBOT_S3_BUCKET",
		"PLANTBOT_S3_OBJECT_KEY",
		"PLANTBOT_S3_ACCESS_KEY",
		"PLANTBOT_S3_SECRET_KEY",
		"PLANTBOT_S3_USE_SSL",
		"HA_URL",
		"HA_TOKEN",
		"HA_TEMP_ENTITY",
		"HA_HUMIDITY_ENTITY",
		"HOUSE_PAGE_ID",
		"PLANTBOT_LOG_LEVEL",
		"PLANTBOT_LOG_FORMAT",
		"PLANTBOT_CONFIG_PATH",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

// Helper to set the env vars validation requires
func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("NOTION_TOKEN", "secret_test_token")
	os.Setenv("NOTION_DATABASE_ID", "db-test-1")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	os.Setenv("PLANTBOT_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Tracker.Project != "Plant Care" {
		t.Errorf("Tracker.Project = %q", cfg.Tracker.Project)
	}
	if time.Duration(cfg.Tracker.Timeout) != 30*time.Second {
		t.Errorf("Tracker.Timeout = %v", time.Duration(cfg.Tracker.Timeout))
	}
	if cfg.Sync.CheckpointScheme != "marker" {
		t.Errorf("Sync.CheckpointScheme = %q", cfg.Sync.CheckpointScheme)
	}
	if cfg.Sync.LogbookLimit != 400 {
		t.Errorf("Sync.LogbookLimit = %d", cfg.Sync.LogbookLimit)
	}
	if cfg.Notion.Properties.NextWatering != "Next Watering" {
		t.Errorf("Properties.NextWatering = %q", cfg.Notion.Properties.NextWatering)
	}
	if cfg.Notion.Properties.LastWatered != "Last Watered" {
		t.Errorf("Properties.LastWatered = %q", cfg.Notion.Properties.LastWatered)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Backup.Bucket != "" {
		t.Errorf("Backup.Bucket = %q, want unconfigured", cfg.Backup.Bucket)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	clearEnv(t)
	os.Setenv("NOTION_DATABASE_ID", "db-test-1")
	os.Setenv("PLANTBOT_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail without NOTION_TOKEN")
	}
	if !strings.Contains(err.Error(), "NOTION_TOKEN") {
		t.Errorf("error = %v, want mention of NOTION_TOKEN", err)
	}
}

func TestLoad_MissingDatabaseID(t *testing.T) {
	clearEnv(t)
	os.Setenv("NOTION_TOKEN", "secret")
	os.Setenv("PLANTBOT_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without NOTION_DATABASE_ID")
	}
}

func TestLoadFromFile_YAMLAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	yamlDoc := `
tracker:
  project: Greenhouse
  timeout: 45s
sync:
  checkpoint_scheme: set
  logbook_limit: 800
notion:
  properties:
    next_watering: Water Due
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "plantbot.yaml")
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	// Env beats YAML.
	os.Setenv("THINGS_PROJECT", "Balcony")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Tracker.Project != "Balcony" {
		t.Errorf("Tracker.Project = %q, want env override Balcony", cfg.Tracker.Project)
	}
	if time.Duration(cfg.Tracker.Timeout) != 45*time.Second {
		t.Errorf("Tracker.Timeout = %v", time.Duration(cfg.Tracker.Timeout))
	}
	if cfg.Sync.CheckpointScheme != "set" || cfg.Sync.LogbookLimit != 800 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Notion.Properties.NextWatering != "Water Due" {
		t.Errorf("Properties.NextWatering = %q", cfg.Notion.Properties.NextWatering)
	}
	// Untouched keys keep their defaults.
	if cfg.Notion.Properties.LastWatered != "Last Watered" {
		t.Errorf("Properties.LastWatered = %q", cfg.Notion.Properties.LastWatered)
	}
}

func TestLoad_InvalidScheme(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	os.Setenv("PLANTBOT_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	os.Setenv("PLANTBOT_CHECKPOINT_SCHEME", "both")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject an unknown checkpoint scheme")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "plantbot.yaml")
	if err := os.WriteFile(path, []byte("tracker:\n  timeout: banana\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("LoadFromFile() should reject an invalid duration")
	}
}

func TestValidateConditions(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	os.Setenv("PLANTBOT_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.ValidateConditions(); err == nil {
		t.Fatal("ValidateConditions() should fail with no HA settings")
	}

	os.Setenv("HA_URL", "http://ha.local:8123")
	os.Setenv("HA_TOKEN", "ha-secret")
	os.Setenv("HA_TEMP_ENTITY", "sensor.temp")
	os.Setenv("HA_HUMIDITY_ENTITY", "sensor.hum")
	os.Setenv("HOUSE_PAGE_ID", "page-1")

	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.ValidateConditions(); err != nil {
		t.Errorf("ValidateConditions() error = %v", err)
	}
	if cfg.Conditions.TemperatureProp != "Temperature (F)" {
		t.Errorf("TemperatureProp = %q", cfg.Conditions.TemperatureProp)
	}
}
