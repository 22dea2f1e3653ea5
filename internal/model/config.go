package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BackendConfig points at the classification backend.
type BackendConfig struct {
	// BaseURL is the root URL of the backend (e.g., https://api.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds ordinary backend calls (status, toggle).
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// ClassifyTimeoutSec bounds a single background classification.
	ClassifyTimeoutSec int `mapstructure:"classify_timeout_sec" yaml:"classify_timeout_sec"`

	// RatePerSec caps classification requests issued by the mail poller.
	RatePerSec float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
}

// StoreConfig locates the local state database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SMSConfig configures the inbound SMS webhook listener.
type SMSConfig struct {
	// ListenAddr is where the gateway webhook is served (e.g., ":8088").
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// RequireToken rejects webhook calls without the keyring-stored token.
	RequireToken bool `mapstructure:"require_token" yaml:"require_token"`
}

// MailConfig configures the IMAP poller used for the mail channel.
type MailConfig struct {
	Host            string `mapstructure:"host" yaml:"host"`
	Port            string `mapstructure:"port" yaml:"port"`
	Username        string `mapstructure:"username" yaml:"username"`
	TLS             bool   `mapstructure:"tls" yaml:"tls"`
	PollIntervalSec int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	BatchSize       int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// BridgeConfig selects how background events reach the running app.
// An empty NATSURL keeps delivery in-process.
type BridgeConfig struct {
	NATSURL string `mapstructure:"nats_url" yaml:"nats_url"`
}

// PushConfig configures system notifications via Firebase Cloud Messaging.
type PushConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	CredentialsFile string   `mapstructure:"credentials_file" yaml:"credentials_file"`
	ProjectID       string   `mapstructure:"project_id" yaml:"project_id"`
	DeviceTokens    []string `mapstructure:"device_tokens" yaml:"device_tokens"`
}

// MetricsConfig configures the Prometheus endpoint. Empty disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// MonitorConfig holds orchestrator settings.
type MonitorConfig struct {
	// ReconcileSchedule is a cron spec for re-attempting failed starts.
	// Empty disables reconciliation.
	ReconcileSchedule string `mapstructure:"reconcile_schedule" yaml:"reconcile_schedule"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	SMS     SMSConfig     `mapstructure:"sms" yaml:"sms"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Bridge  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	Push    PushConfig    `mapstructure:"push" yaml:"push"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ConfigDir returns ~/.config/swiftshield, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "swiftshield")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/swiftshield/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			BaseURL:            "http://localhost:5000",
			TimeoutSec:         15,
			ClassifyTimeoutSec: 15,
			RatePerSec:         2,
		},
		Store: StoreConfig{
			Path: filepath.Join(ConfigDir(), "swiftshield.db"),
		},
		SMS: SMSConfig{
			ListenAddr: "127.0.0.1:8088",
		},
		Mail: MailConfig{
			Host:            "imap.gmail.com",
			Port:            "993",
			TLS:             true,
			PollIntervalSec: 60,
			BatchSize:       20,
		},
		Monitor: MonitorConfig{
			ReconcileSchedule: "@every 15m",
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "swiftshield.log"),
		},
	}
}

// setDefaults mirrors defaultAppConfig so missing keys resolve to sensible
// values when a partial file is loaded.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout_sec", d.Backend.TimeoutSec)
	v.SetDefault("backend.classify_timeout_sec", d.Backend.ClassifyTimeoutSec)
	v.SetDefault("backend.rate_per_sec", d.Backend.RatePerSec)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("sms.listen_addr", d.SMS.ListenAddr)
	v.SetDefault("mail.host", d.Mail.Host)
	v.SetDefault("mail.port", d.Mail.Port)
	v.SetDefault("mail.tls", d.Mail.TLS)
	v.SetDefault("mail.poll_interval_sec", d.Mail.PollIntervalSec)
	v.SetDefault("mail.batch_size", d.Mail.BatchSize)
	v.SetDefault("monitor.reconcile_schedule", d.Monitor.ReconcileSchedule)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first, and SWIFTSHIELD_*
// environment variables override file values (e.g.,
// SWIFTSHIELD_BACKEND_BASE_URL). If the file does not exist, defaults plus
// environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SWIFTSHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Mail.PollIntervalSec <= 0 {
		cfg.Mail.PollIntervalSec = 60
	}
	if cfg.Backend.ClassifyTimeoutSec <= 0 {
		cfg.Backend.ClassifyTimeoutSec = 15
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("store", cfg.Store)
	v.Set("sms", cfg.SMS)
	v.Set("mail", cfg.Mail)
	v.Set("bridge", cfg.Bridge)
	v.Set("push", cfg.Push)
	v.Set("metrics", cfg.Metrics)
	v.Set("monitor", cfg.Monitor)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
