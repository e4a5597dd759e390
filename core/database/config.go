package database

import "github.com/kelseyhightower/envconfig"

// Config holds database connection settings. It is loaded separately from
// the main bot config so the json storage driver never requires DB_* vars.
type Config struct {
	Host           string `yaml:"host" envconfig:"DB_HOST" default:"localhost"`
	Port           string `yaml:"port" envconfig:"DB_PORT" default:"5432"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE" default:"disable"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS" default:"10"`
}

// LoadFromEnv fills Config from DB_* environment variables.
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
