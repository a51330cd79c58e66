// Package config loads relay configuration from config.yaml and the
// environment.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App     AppConfig     `koanf:"app"`
	Server  ServerConfig  `koanf:"server"`
	CORS    CORSConfig    `koanf:"cors"`
	Coze    CozeConfig    `koanf:"coze"`
	Storage StorageConfig `koanf:"storage"`
}

type AppConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
	Debug   bool   `koanf:"debug"`
}

type ServerConfig struct {
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Timeout string `koanf:"timeout"` // Duration string like "60s"
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type CozeConfig struct {
	BaseURL          string `koanf:"base_url"`
	AccessToken      string `koanf:"access_token"`
	WorkflowID       string `koanf:"workflow_id"`
	AppID            string `koanf:"app_id"`
	Timeout          string `koanf:"timeout"` // Duration string like "30s"
	ConversationName string `koanf:"conversation_name"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try to load from config.yaml file first
	if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("RELAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RELAY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]interface{}{
		"app.name":               "feishu-coze-relay",
		"app.version":            "0.1.0",
		"app.debug":              true,
		"server.host":            "0.0.0.0",
		"server.port":            8000,
		"server.timeout":         "60s",
		"cors.allowed_origins":   []string{"*"},
		"cors.allowed_methods":   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		"cors.allowed_headers":   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		"cors.exposed_headers":   []string{"X-Request-ID"},
		"cors.allow_credentials": true,
		"cors.max_age":           300,
		"coze.base_url":          "https://api.coze.cn",
		"coze.timeout":           "30s",
		"coze.conversation_name": "Answer",
		"storage.type":           "sqlite",
		"storage.sqlite.path":    "relay.db",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in the access token so config.yaml
	// can reference a secret as ${COZE_ACCESS_TOKEN} instead of inlining it
	cfg.Coze.AccessToken = substituteEnvVars(cfg.Coze.AccessToken)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
