// Package e2e exercises the whole stack through a real socket: server,
// orchestrator, storage, and the Go client session together.
package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the suite at a chat endpoint. With no E2E_SERVER_URL
// the suite starts an in-process server on a throwaway store; with one
// it targets a running instance seeded with the demo dataset.
type Config struct {
	ServerURL  string `envconfig:"E2E_SERVER_URL"`
	SigningKey string `envconfig:"E2E_SIGNING_KEY" default:"atelier-demo-key"`
	LogLevel   string `envconfig:"E2E_LOG_LEVEL" default:"DEBUG"`
}

func LoadConfig() (Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, err
	}
	return config, nil
}
