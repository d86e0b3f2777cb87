package config

import (
	"encoding/base64"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Env holds the raw environment surface (RELAY_ prefix). Values are
// used as flag defaults in cmd/server, so flags override env.
type Env struct {
	ServerAddr     string   `envconfig:"SERVER_ADDR" default:"localhost:8000"`
	DatabaseDSN    string   `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	BrokerURL      string   `envconfig:"BROKER_URL"`
	SigningSecret  string   `envconfig:"SIGNING_SECRET"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	HistoryLimit   int      `envconfig:"HISTORY_LIMIT" default:"50"`
}

func FromEnv() (*Env, error) {
	var e Env
	if err := envconfig.Process("relay", &e); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &e, nil
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	BrokerURL      string
	AllowedOrigins []string
	SigningKey     []byte
	HistoryLimit   int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// NewConfig validates the configuration surface. BrokerURL may be empty
// (the in-process fabric is used) and the signing secret is optional
// (identity falls back to plain query parameters).
func NewConfig(serverAddr, databaseDSN, brokerURL, base64Secret string, allowedOrigins []string, historyLimit int) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if historyLimit <= 0 {
		return nil, fmt.Errorf("history limit must be positive")
	}

	var signingKey []byte
	if base64Secret != "" {
		var err error
		signingKey, err = decodeSigningSecret(base64Secret)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		BrokerURL:      brokerURL,
		AllowedOrigins: allowedOrigins,
		SigningKey:     signingKey,
		HistoryLimit:   historyLimit,
	}, nil
}
