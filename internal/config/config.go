package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envConfig is the environment-variable form of the server configuration.
// Flags in cmd/server override any value loaded here.
type envConfig struct {
	ServerAddr     string   `env:"STUDYCIRCLE_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN    string   `env:"STUDYCIRCLE_DSN"`
	SigningSecret  string   `env:"STUDYCIRCLE_JWT_SECRET"`
	AllowedOrigins []string `env:"STUDYCIRCLE_ALLOWED_ORIGINS" envSeparator:","`
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// FromEnv reads configuration from the process environment. Values may be
// empty; NewConfig performs the validation once flag overrides are applied.
func FromEnv() (serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, err error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return "", "", "", nil, fmt.Errorf("parse environment: %w", err)
	}

	return ec.ServerAddr, ec.DatabaseDSN, ec.SigningSecret, ec.AllowedOrigins, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
	}, nil
}
