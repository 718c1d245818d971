package config

import "os"

const (
	defaultBaseURL      = "http://localhost:5000"
	defaultDatabasePath = "sparqui.db"
)

type Config struct {
	BaseURL      string
	DatabasePath string
}

func NewConfig() *Config {
	cfg := &Config{
		BaseURL:      defaultBaseURL,
		DatabasePath: defaultDatabasePath,
	}
	if v := os.Getenv("SPARQ_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SPARQ_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	return cfg
}
