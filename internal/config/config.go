// Package config loads server settings from defaults, an optional YAML
// file, a .env file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/varsilias/siap-chat/internal/backend"
	"github.com/varsilias/siap-chat/pkg/types"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Backend  BackendConfig  `yaml:"backend"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Chat     ChatConfig     `yaml:"chat"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// BackendConfig points at the external chat service.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultsConfig seeds the settings panel of every new session.
type DefaultsConfig struct {
	UserID      string `yaml:"user_id"`
	BearerToken string `yaml:"bearer_token"`
}

type ChatConfig struct {
	SerializeSubmits bool `yaml:"serialize_submits"`
}

func Defaults() Config {
	return Config{
		Server:  ServerConfig{Addr: "8080"},
		Log:     LogConfig{Level: "info"},
		Backend: BackendConfig{BaseURL: "http://localhost:8000", Path: backend.DefaultPath},
		Defaults: DefaultsConfig{
			UserID:      "123",
			BearerToken: "your-auth-token",
		},
	}
}

// Credentials are the settings-panel defaults.
func (c Config) Credentials() types.Credentials {
	return types.Credentials{UserID: c.Defaults.UserID, BearerToken: c.Defaults.BearerToken}
}

// Load resolves the configuration. path may be empty, in which case
// SIAP_CONFIG and ./config.yaml are tried.
func Load(path string, log *slog.Logger) (*Config, error) {
	cfg := Defaults()

	if file := discover(path); file != "" {
		if err := loadYAML(file, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", file, err)
		}
		log.Info("config file loaded", "path", file)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to load .env file", "err", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discover(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("SIAP_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, cfg)
}

func applyEnv(cfg *Config) error {
	if v := GetEnv("ADDR", ""); v != "" {
		cfg.Server.Addr = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		cfg.Log.Level = v
	}
	if v := GetEnv("BACKEND_URL", ""); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := GetEnv("BACKEND_PATH", ""); v != "" {
		cfg.Backend.Path = v
	}
	if v := GetEnv("DEFAULT_USER_ID", ""); v != "" {
		cfg.Defaults.UserID = v
	}
	if v := GetEnv("DEFAULT_BEARER_TOKEN", ""); v != "" {
		cfg.Defaults.BearerToken = v
	}
	if v := GetEnv("BACKEND_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BACKEND_TIMEOUT value %q: %w", v, err)
		}
		cfg.Backend.Timeout = d
	}

	var err error
	if cfg.Log.JSON, err = parseBool("LOG_JSON", cfg.Log.JSON); err != nil {
		return err
	}
	if cfg.Chat.SerializeSubmits, err = parseBool("SERIALIZE_SUBMITS", cfg.Chat.SerializeSubmits); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 {
		return errors.New("backend.timeout must not be negative")
	}
	return nil
}

// ListenAddr accepts "8080", ":8080" or "host:8080".
func (c Config) ListenAddr() string {
	if strings.Contains(c.Server.Addr, ":") {
		return c.Server.Addr
	}
	return ":" + c.Server.Addr
}

// GetEnv returns the trimmed value of key, or def when unset or blank.
func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) (bool, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return v, nil
}
