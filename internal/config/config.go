package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Database  DatabaseConfig            `json:"database"`
	LogConfig logger.LogConfig          `json:"log_config"`
	FileStore FileStoreConfig           `json:"file_store"`
	Instances map[string]InstanceConfig `json:"instances"`
	Worker    WorkerConfig              `json:"worker"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// InstanceConfig describes one remote source instance the importer may
// fetch from.
type InstanceConfig struct {
	APIURL string `json:"api_url"`
}

type WorkerConfig struct {
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	LeaseSeconds        int    `json:"lease_seconds"`
	BatchSize           int    `json:"batch_size"`
	PostCommitSpec      string `json:"post_commit_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if len(cfg.Instances) == 0 {
		return nil, fmt.Errorf("at least one source instance is required")
	}
	for name, inst := range cfg.Instances {
		if inst.APIURL == "" {
			return nil, fmt.Errorf("instances.%s.api_url is required", name)
		}
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Worker.PollIntervalSeconds <= 0 {
		cfg.Worker.PollIntervalSeconds = 5
	}
	if cfg.Worker.LeaseSeconds <= 0 {
		cfg.Worker.LeaseSeconds = 120
	}
	if cfg.Worker.BatchSize <= 0 {
		cfg.Worker.BatchSize = 4
	}
	if cfg.Worker.PostCommitSpec == "" {
		cfg.Worker.PostCommitSpec = "* * * * *"
	}
	return &cfg, nil
}
