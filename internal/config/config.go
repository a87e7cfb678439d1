package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	SFTP    SFTPConfig    `yaml:"sftp" envconfig:"SFTP"`
	Report  ReportConfig  `yaml:"report" envconfig:"REPORT"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// SFTPConfig contains connection behavior shared by all accounts.
// AcceptAnyHostKey preserves the tool's historical trust-on-first-use
// behavior; it is an explicit, logged choice rather than a hidden
// default, and can be disabled in favor of a known_hosts file.
type SFTPConfig struct {
	ConnectTimeout   time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT" default:"30s"`
	AcceptAnyHostKey bool          `yaml:"accept_any_host_key" envconfig:"ACCEPT_ANY_HOST_KEY" default:"true"`
	KnownHostsFile   string        `yaml:"known_hosts_file" envconfig:"KNOWN_HOSTS_FILE"`
}

// ReportConfig contains workbook naming configuration.
type ReportConfig struct {
	BaseName  string `yaml:"base_name" envconfig:"BASE_NAME" default:"Accounts_Daily_Update"`
	SheetName string `yaml:"sheet_name" envconfig:"SHEET_NAME" default:"Latest Files"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables take precedence.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("AUDIT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Logging.Output == "" {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if envConfig.Logging.FilePath == "" {
		envConfig.Logging.FilePath = fileConfig.Logging.FilePath
	}
	if envConfig.SFTP.ConnectTimeout == 0 {
		envConfig.SFTP.ConnectTimeout = fileConfig.SFTP.ConnectTimeout
	}
	if envConfig.SFTP.KnownHostsFile == "" {
		envConfig.SFTP.KnownHostsFile = fileConfig.SFTP.KnownHostsFile
	}
	if envConfig.Report.BaseName == "" {
		envConfig.Report.BaseName = fileConfig.Report.BaseName
	}
	if envConfig.Report.SheetName == "" {
		envConfig.Report.SheetName = fileConfig.Report.SheetName
	}
	return envConfig
}

// validate normalizes and checks the configuration.
func (c *Config) validate() error {
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}
	if c.SFTP.ConnectTimeout < 0 {
		return fmt.Errorf("sftp connect timeout must not be negative")
	}
	if !c.SFTP.AcceptAnyHostKey && c.SFTP.KnownHostsFile == "" {
		return fmt.Errorf("known_hosts_file is required when accept_any_host_key is disabled")
	}
	if c.Report.BaseName == "" {
		c.Report.BaseName = "Accounts_Daily_Update"
	}
	if c.Report.SheetName == "" {
		c.Report.SheetName = "Latest Files"
	}
	return nil
}

// getConfigFilePath returns the path to the config file, if any exists.
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "both",
		},
		SFTP: SFTPConfig{
			ConnectTimeout:   30 * time.Second,
			AcceptAnyHostKey: true,
		},
		Report: ReportConfig{
			BaseName:  "Accounts_Daily_Update",
			SheetName: "Latest Files",
		},
	}
}
