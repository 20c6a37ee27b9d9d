// config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatalakeConfig struct {
	Root string `yaml:"root"`
}

// HMDConfig holds the Human Mortality Database endpoints. The URLs are
// configurable so tests can point the collector at a local server.
type HMDConfig struct {
	LoginURL            string `yaml:"login_url"`
	BulkDownloadURL     string `yaml:"bulk_download_url"`
	DownloadCacheTTLStr string `yaml:"download_cache_ttl"`
	DownloadCacheTTL    time.Duration
}

type Config struct {
	LogMode  string         `yaml:"log_mode"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Datalake DatalakeConfig `yaml:"datalake"`
	HMD      HMDConfig      `yaml:"hmd"`
}

// Load reads configuration from a yaml file into an explicit Config value.
// Credentials are NOT kept here; they come from the environment (see the
// collector docs for HMD_USERNAME / HMD_PASSWORD).
func Load(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.HMD.LoginURL == "" {
		cfg.HMD.LoginURL = "https://www.mortality.org/Account/Login"
	}
	if cfg.HMD.BulkDownloadURL == "" {
		cfg.HMD.BulkDownloadURL = "https://www.mortality.org/File/Download/hmd.v6/zip/all_hmd/hmd_statistics_20230403.zip"
	}
	if cfg.HMD.DownloadCacheTTLStr != "" {
		cfg.HMD.DownloadCacheTTL, err = time.ParseDuration(cfg.HMD.DownloadCacheTTLStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse download_cache_ttl: %w", err)
		}
	} else {
		// The bulk download is ~160MB and takes minutes; a day-long cache
		// keeps repeated invocations from hammering the upstream.
		cfg.HMD.DownloadCacheTTL = 24 * time.Hour
	}
	if cfg.Datalake.Root == "" {
		cfg.Datalake.Root = "./datalake_files"
	}

	return &cfg, nil
}
